package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/memory"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/services"
)

const (
	fieldName       = "http://ex.org/name"
	fieldPopulation = "http://ex.org/population"
	fieldCountry    = "http://ex.org/country"
)

func city(id, name string, population int64, country string) *domain.Representation {
	rep := domain.NewRepresentation(id)
	rep.Add(fieldName, domain.NewText(name, "en"))
	rep.Add(fieldPopulation, domain.Integer(population))
	rep.Add(fieldCountry, domain.NewReference(country))
	return rep
}

// newTestServer creates a server over a memory yard holding three cities.
func newTestServer(t *testing.T) (*Server, *services.Yard) {
	t.Helper()
	ctx := context.Background()

	yard, err := services.NewYard(ctx, domain.DefaultYardConfig(), memory.NewIndex(), nil, nil)
	require.NoError(t, err)
	for _, rep := range []*domain.Representation{
		city("urn:city:paris", "Paris", 2100000, "http://ex.org/France"),
		city("urn:city:lyon", "Lyon", 500000, "http://ex.org/France"),
		city("urn:city:berlin", "Berlin", 3600000, "http://ex.org/Germany"),
	} {
		_, err := yard.Store(ctx, rep)
		require.NoError(t, err)
	}

	server, err := NewServer(&Ports{Yard: yard})
	require.NoError(t, err)
	return server, yard
}

func TestNewServer(t *testing.T) {
	t.Run("nil yard returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingYard)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		server, _ := newTestServer(t)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	ports := &Ports{}
	assert.ErrorIs(t, ports.Validate(), ErrMissingYard)

	_, yard := newTestServer(t)
	ports = &Ports{Yard: yard, Sources: []string{"cities"}}
	assert.NoError(t, ports.Validate())
}
