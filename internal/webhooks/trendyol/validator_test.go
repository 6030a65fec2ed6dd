package trendyol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

type fakeSource struct {
	integration *models.Integration
	err         error
}

func (f fakeSource) Active(context.Context, enums.SalesChannel) (*models.Integration, error) {
	return f.integration, f.err
}

func TestValidateKey(t *testing.T) {
	active := fakeSource{integration: &models.Integration{Secret: "s3cret"}}

	cases := []struct {
		name   string
		source fakeSource
		build  func(r *http.Request)
		want   bool
	}{
		{"header", active, func(r *http.Request) { r.Header.Set("X-Api-Key", "s3cret") }, true},
		{"trendyol header", active, func(r *http.Request) { r.Header.Set("x-trendyol-api-key", "s3cret") }, true},
		{"query", active, func(r *http.Request) { setQuery(r, "s3cret") }, true},
		{"bearer", active, func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }, true},
		{"header wins over valid query", active, func(r *http.Request) {
			r.Header.Set("X-Api-Key", "wrong")
			setQuery(r, "s3cret")
		}, false},
		{"query wins over valid bearer", active, func(r *http.Request) {
			setQuery(r, "wrong")
			r.Header.Set("Authorization", "Bearer s3cret")
		}, false},
		{"case sensitive", active, func(r *http.Request) { r.Header.Set("X-Api-Key", "S3CRET") }, false},
		{"prefix is not a match", active, func(r *http.Request) { r.Header.Set("X-Api-Key", "s3cre") }, false},
		{"no key", active, func(*http.Request) {}, false},
		{"basic auth ignored", active, func(r *http.Request) { r.Header.Set("Authorization", "Basic s3cret") }, false},
		{"no integration", fakeSource{}, func(r *http.Request) { r.Header.Set("X-Api-Key", "") }, false},
		{"empty secret", fakeSource{integration: &models.Integration{}}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, false},
		{"lookup error", fakeSource{err: errors.New("db down")}, func(r *http.Request) { r.Header.Set("X-Api-Key", "s3cret") }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/webhooks/trendyol/orders", nil)
			tc.build(r)
			v := NewValidator(tc.source, nil)
			assert.Equal(t, tc.want, v.ValidateKey(context.Background(), r))
		})
	}
}

func TestValidateKeyNilValidator(t *testing.T) {
	var v *Validator
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, v.ValidateKey(context.Background(), r))
}

func setQuery(r *http.Request, key string) {
	q := r.URL.Query()
	q.Set("api_key", key)
	r.URL.RawQuery = q.Encode()
}
