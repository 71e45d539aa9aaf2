package tiles

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
)

var (
	ErrUnknownMap = errors.New("unknown map id")
	ErrBadToken   = errors.New("invalid map token")
)

type MapID struct {
	ID    string `json:"mapid"`
	Token string `json:"token"`
}

type entry struct {
	token string
	layer *Layer
}

// Registry keeps rendered layers addressable by map id. At most maxLayers
// are kept, and a layer no tile has been read from for ttl is dropped.
type Registry struct {
	baseURL string
	layers  *otter.Cache[string, entry]
}

func NewRegistry(baseURL string, maxLayers int, ttl time.Duration) (*Registry, error) {
	return newRegistry(baseURL, maxLayers, ttl, nil)
}

func newRegistry(baseURL string, maxLayers int, ttl time.Duration, clock otter.Clock) (*Registry, error) {
	if maxLayers < 1 || ttl <= 0 {
		return nil, fmt.Errorf("map registry needs a positive size and ttl, got %d and %s", maxLayers, ttl)
	}
	layers, err := otter.New(&otter.Options[string, entry]{
		MaximumSize:      maxLayers,
		ExpiryCalculator: otter.ExpiryAccessing[string, entry](ttl),
		Clock:            clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create layer cache: %w", err)
	}
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		layers:  layers,
	}, nil
}

func (r *Registry) Register(layer *Layer) MapID {
	id := MapID{ID: uuid.NewString(), Token: uuid.NewString()}
	r.layers.Set(id.ID, entry{token: id.Token, layer: layer})
	return id
}

// TileURL leaves the {z}/{x}/{y} placeholders for the map viewer.
func (r *Registry) TileURL(id MapID) string {
	return fmt.Sprintf("%s/map/%s/{z}/{x}/{y}?token=%s", r.baseURL, id.ID, id.Token)
}

func (r *Registry) Lookup(mapID, token string) (*Layer, error) {
	e, ok := r.layers.GetIfPresent(mapID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, mapID)
	}
	if subtle.ConstantTimeCompare([]byte(e.token), []byte(token)) != 1 {
		return nil, ErrBadToken
	}
	return e.layer, nil
}

// Len reports the layers still held once pending evictions have run.
func (r *Registry) Len() int {
	r.layers.CleanUp()
	return r.layers.EstimatedSize()
}
