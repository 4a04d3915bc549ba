// Package content reads the countries catalogue from the external GraphQL
// API, caching responses in Redis when a client is configured.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound = errors.New("content not found")
	ErrUpstream = errors.New("content api request failed")
)

const (
	countriesQuery = `query GetCountries {
  Countries {
    docs {
      name
      id
      capital
      population
      image {
        alt
        url
      }
    }
  }
}`

	countryQuery = `query ($id: ID!) {
  Country(id: $id) {
    id
    name
    capital
    population
    image {
      alt
      url
    }
  }
}`
)

type Image struct {
	Alt string `json:"alt"`
	URL string `json:"url"`
}

type Country struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Capital    string   `json:"capital,omitempty"`
	Population *float64 `json:"population,omitempty"`
	Image      *Image   `json:"image,omitempty"`
}

type Client struct {
	endpoint string
	http     *http.Client
	cache    *redis.Client
	ttl      time.Duration
}

// NewClient builds a client; cache may be nil.
func NewClient(endpoint string, cache *redis.Client, ttl time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		ttl:      ttl,
	}
}

func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	var data struct {
		Countries *struct {
			Docs []Country `json:"docs"`
		} `json:"Countries"`
	}
	if err := c.query(ctx, countriesQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Countries == nil {
		return []Country{}, nil
	}
	return data.Countries.Docs, nil
}

func (c *Client) Country(ctx context.Context, id string) (*Country, error) {
	var data struct {
		Country *Country `json:"Country"`
	}
	if err := c.query(ctx, countryQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Country == nil {
		return nil, ErrNotFound
	}
	return data.Country, nil
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	key := cacheKey(body)

	if raw, ok := c.cached(ctx, key); ok {
		return json.Unmarshal(raw, out)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var gr response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return errors.Join(ErrUpstream, err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrUpstream, gr.Errors[0].Message)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return errors.Join(ErrUpstream, err)
	}

	c.store(ctx, key, gr.Data)
	return nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("Content cache read failed")
		}
		return nil, false
	}
	return raw, true
}

func (c *Client) store(ctx context.Context, key string, raw []byte) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Content cache write failed")
	}
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "content:" + hex.EncodeToString(sum[:])
}
