package helpers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	perrors "sjsage522/listingwatcher/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<a href="https://www.ebay.com/itm/1">Hello, World!</a>`))
	}))
	defer server.Close()

	body, err := NewFetcher("ebay", time.Second).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello, World!")
}

func TestFetchConvertsWindows1251(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.WriteHeader(http.StatusOK)
		// "Ноутбук" in windows-1251
		w.Write([]byte{0xCD, 0xEE, 0xF3, 0xF2, 0xE1, 0xF3, 0xEA})
	}))
	defer server.Close()

	body, err := NewFetcher("avito", time.Second).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Ноутбук", body)
}

func TestFetchStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewFetcher("ebay", time.Second).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")

	var me *perrors.MonitorError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, perrors.ErrorTypeStatus, me.Type)
	assert.True(t, me.IsTransient())
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewFetcher("ebay", 100*time.Millisecond).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var me *perrors.MonitorError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, perrors.ErrorTypeNetwork, me.Type)
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := NewFetcher("ebay", time.Second).Fetch(context.Background(), "http://invalid.url.that.does.not.exist")
	assert.Error(t, err)
}
