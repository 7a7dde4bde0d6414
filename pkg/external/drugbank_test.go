package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mockClient() *DrugBankClient {
	return NewDrugBankClient(domain.DrugBankConfig{
		UseMock:           true,
		RateLimitRequests: 10,
		RateLimitWindow:   time.Minute,
		Timeout:           5 * time.Second,
	}, newTestLogger())
}

func liveClient(baseURL string) *DrugBankClient {
	return NewDrugBankClient(domain.DrugBankConfig{
		BaseURL:           baseURL,
		Token:             "test-token",
		RateLimitRequests: 20,
		RateLimitWindow:   time.Minute,
		Timeout:           5 * time.Second,
	}, newTestLogger())
}

func TestFetchMonographMockMode(t *testing.T) {
	client := mockClient()

	info, err := client.FetchMonograph(context.Background(), "Liraglutide")
	require.NoError(t, err)
	assert.Equal(t, "Liraglutide", info.Name)
	assert.Equal(t, "GLP-1 Receptor Agonist", info.DrugClass)

	_, err = client.FetchMonograph(context.Background(), "nonexistium")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestFetchMonographMockReturnsCopies(t *testing.T) {
	client := mockClient()

	first, err := client.FetchMonograph(context.Background(), "canagliflozin")
	require.NoError(t, err)
	first.Warnings[0] = "mutated"

	second, err := client.FetchMonograph(context.Background(), "canagliflozin")
	require.NoError(t, err)
	assert.Equal(t, "Lower limb amputation", second.Warnings[0])
}

func TestFetchMonographLive(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"name": "Empagliflozin",
			"drug_class": "SGLT2 Inhibitor",
			"mechanism_of_action": "Inhibits sodium-glucose cotransporter 2",
			"indications": ["Type 2 diabetes mellitus"],
			"warnings": ["Ketoacidosis"],
			"dosing": {"initial": "10 mg once daily"}
		}`)
	}))
	defer server.Close()

	client := liveClient(server.URL + "/")
	info, err := client.FetchMonograph(context.Background(), "Jardiance")
	require.NoError(t, err)

	assert.Equal(t, "/drugs/empagliflozin", gotPath, "lookups use the normalized name")
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "Empagliflozin", info.Name)
	assert.Equal(t, []string{"Ketoacidosis"}, info.Warnings)
}

func TestFetchMonographNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := liveClient(server.URL+"/").FetchMonograph(context.Background(), "unknowndrug")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestFetchMonographServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := liveClient(server.URL+"/").FetchMonograph(context.Background(), "empagliflozin")
	var transient *domain.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestFetchMonographCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := liveClient(server.URL + "/")
	for i := 0; i < 5; i++ {
		_, err := client.FetchMonograph(context.Background(), "empagliflozin")
		require.Error(t, err)
	}
	require.EqualValues(t, 5, calls.Load())

	_, err := client.FetchMonograph(context.Background(), "empagliflozin")
	var transient *domain.TransientError
	assert.ErrorAs(t, err, &transient)
	assert.EqualValues(t, 5, calls.Load(), "open breaker short-circuits the backend call")
}

func TestFetchMonographCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := liveClient("http://127.0.0.1:1/").FetchMonograph(ctx, "empagliflozin")
	assert.ErrorIs(t, err, context.Canceled)
}
