// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, "3")
	}))
	defer srv.Close()

	resp, err := NewClient().Get(context.Background(), srv.URL+"/salud/size", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "3", string(resp.Body))
	assert.True(t, resp.OK())
	assert.Equal(t, Delivered, Classify(resp, err))
}

func TestPostSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("ApiKey"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "a\x00b", string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	resp, err := NewClient().Post(context.Background(), srv.URL, map[string]string{
		"Content-Type": "application/json",
		"ApiKey":       "secret",
	}, []byte("a\x00b"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, Delivered, Classify(resp, err))
}

func TestNonSuccessStatusIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := NewClient().Post(context.Background(), srv.URL, nil, []byte("{}"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, Rejected, Classify(resp, err))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp, err := NewClient().Get(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, TransportFailed, Classify(resp, err))
}

func TestConnectionRefusedIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient().Get(context.Background(), url, time.Second)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	_, err := NewClient(WithMaxBody(64)).Get(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	_, err = NewClient(WithMaxBody(63)).Get(context.Background(), srv.URL, time.Second)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestBadURL(t *testing.T) {
	_, err := NewClient().Get(context.Background(), "://nope", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "transport_failed", TransportFailed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
