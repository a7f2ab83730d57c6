package openrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `{
  "openrpc": "1.2.6",
  "info": {"title": "Starknet Node API", "version": "0.7.1"},
  "methods": [
    {
      "name": "starknet_getBlockWithTxHashes",
      "params": [
        {"name": "block_id", "required": true, "schema": {"type": "string"}}
      ],
      "result": {
        "name": "result",
        "schema": {
          "type": "object",
          "required": ["block_hash", "block_number"],
          "properties": {
            "block_hash": {"$ref": "#/components/schemas/FELT"},
            "block_number": {"type": "integer", "minimum": 0}
          }
        }
      },
      "errors": [{"code": 24, "message": "Block not found"}]
    },
    {
      "name": "starknet_blockNumber",
      "params": [],
      "result": {"name": "result", "schema": {"type": "integer", "minimum": 0}}
    }
  ],
  "components": {
    "schemas": {
      "FELT": {"type": "string", "pattern": "^0x(0|[a-fA-F1-9]{1}[a-fA-F0-9]{0,62})$"}
    }
  }
}`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "openrpc.json")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o600))

	registry, err := Load(logrus.New(), path)
	require.NoError(t, err)

	return registry
}

func TestLoad_CompilesDeclaredMethods(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)

	spec := registry.Method("starknet_getBlockWithTxHashes")
	require.NotNil(t, spec)
	assert.Len(t, spec.Params, 1)
	assert.Equal(t, "Block not found", spec.ErrorCodes[24])

	assert.Nil(t, registry.Method("starknet_unknown"))
}

func TestValidateResult_AcceptsConformantResponse(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), false)

	outcome := validator.ValidateResult(
		registry.Method("starknet_getBlockWithTxHashes"),
		json.RawMessage(`{"block_hash":"0x1234abcd","block_number":10,"extra_field":"tolerated"}`),
	)

	assert.True(t, outcome.Valid, "unknown extra fields must be tolerated")
	assert.Empty(t, outcome.Violations)
}

func TestValidateResult_FlagsMissingRequiredField(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), false)

	outcome := validator.ValidateResult(
		registry.Method("starknet_getBlockWithTxHashes"),
		json.RawMessage(`{"block_hash":"0x1234abcd"}`),
	)

	require.False(t, outcome.Valid)
	require.NotNil(t, outcome.First())
	assert.Equal(t, KindSchema, outcome.First().Kind)
}

func TestValidateResult_FlagsBadFeltPattern(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), false)

	outcome := validator.ValidateResult(
		registry.Method("starknet_getBlockWithTxHashes"),
		json.RawMessage(`{"block_hash":"not-a-felt","block_number":10}`),
	)

	assert.False(t, outcome.Valid)
}

func TestValidateResult_FlagsFeltAboveFieldPrime(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), false)

	// 2^251 + 17*2^192 + 1, the field prime itself, is out of range.
	outcome := validator.ValidateResult(
		registry.Method("starknet_getBlockWithTxHashes"),
		json.RawMessage(`{"block_hash":"0x800000000000011000000000000000000000000000000000000000000000001","block_number":10}`),
	)

	require.False(t, outcome.Valid)
	assert.Contains(t, outcome.First().Detail, "field prime")
}

func TestValidateResult_ExhaustiveCollectsAllViolations(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)

	response := json.RawMessage(`{"block_hash":123,"block_number":-1}`)

	first := NewValidator(logrus.New(), false).ValidateResult(registry.Method("starknet_getBlockWithTxHashes"), response)
	exhaustive := NewValidator(logrus.New(), true).ValidateResult(registry.Method("starknet_getBlockWithTxHashes"), response)

	require.False(t, first.Valid)
	require.False(t, exhaustive.Valid)
	assert.Len(t, first.Violations, 1)
	assert.Greater(t, len(exhaustive.Violations), 1)
}

func TestValidateResult_IsIdempotent(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), true)
	spec := registry.Method("starknet_getBlockWithTxHashes")
	response := json.RawMessage(`{"block_hash":"0x1","block_number":-5}`)

	a := validator.ValidateResult(spec, response)
	b := validator.ValidateResult(spec, response)

	assert.Equal(t, a.Valid, b.Valid)
	assert.Equal(t, a.Violations, b.Violations)
}

func TestValidateErrorCode(t *testing.T) {
	t.Parallel()

	registry := loadTestRegistry(t)
	validator := NewValidator(logrus.New(), false)
	spec := registry.Method("starknet_getBlockWithTxHashes")

	t.Run("declared code passes", func(t *testing.T) {
		assert.True(t, validator.ValidateErrorCode(spec, 24).Valid)
	})

	t.Run("standard jsonrpc code passes", func(t *testing.T) {
		assert.True(t, validator.ValidateErrorCode(spec, -32602).Valid)
	})

	t.Run("undeclared code fails", func(t *testing.T) {
		outcome := validator.ValidateErrorCode(spec, 99)
		require.False(t, outcome.Valid)
		assert.Equal(t, KindSemantic, outcome.First().Kind)
	})
}

func TestChainObserver_FlagsRegression(t *testing.T) {
	t.Parallel()

	observer := NewChainObserver()

	require.Nil(t, observer.Observe("juno", "starknet_getBlockWithTxHashes", json.RawMessage(`{"block_number":10}`)))
	require.Nil(t, observer.Observe("juno", "starknet_getBlockWithTxHashes", json.RawMessage(`{"block_number":11}`)))

	violation := observer.Observe("juno", "starknet_getBlockWithTxHashes", json.RawMessage(`{"block_number":9}`))
	require.NotNil(t, violation)
	assert.Equal(t, KindSemantic, violation.Kind)
}

func TestChainObserver_TracksTargetsIndependently(t *testing.T) {
	t.Parallel()

	observer := NewChainObserver()

	require.Nil(t, observer.Observe("juno", "starknet_blockNumber", json.RawMessage(`10`)))
	require.Nil(t, observer.Observe("pathfinder", "starknet_blockNumber", json.RawMessage(`5`)),
		"a lower number on a different target is not a regression")
	require.NotNil(t, observer.Observe("juno", "starknet_blockNumber", json.RawMessage(`9`)))
}
