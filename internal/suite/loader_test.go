package suite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSuite(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o600))
}

func TestLoad_ValidSuite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSuite(t, dir, "openrpc", `
name: openrpc
timeout: 2m
setup:
  - name: deploy_account
    method: starknet_addDeployAccountTransaction
    params: []
    save:
      account_address: result.contract_address
cases:
  - name: get_chain_id
    method: starknet_chainId
    expect:
      kind: schema
      equals: "0x4d41444152415f4445564e4554"
  - name: get_nonce
    method: starknet_getNonce
    params: ["latest", "$ref:account_address"]
    depends_on: [deploy_account]
  - name: block_not_found
    method: starknet_getBlockWithTxHashes
    params: [{"block_number": 999999999}]
    optional: true
    expect:
      kind: error
      error_code: 24
`)

	def, err := NewLoader(logrus.New(), dir).Load("openrpc")
	require.NoError(t, err)

	assert.Equal(t, "openrpc", def.Name)
	require.Len(t, def.Setup, 1)
	require.Len(t, def.Cases, 3)
	assert.Equal(t, ExpectSchema, def.Cases[0].ExpectKind())
	assert.Equal(t, ExpectError, def.Cases[2].ExpectKind())
	assert.True(t, def.Cases[2].Optional)
	assert.Equal(t, []string{"deploy_account"}, def.Cases[1].DependsOn)
}

func TestLoad_RejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing method",
			content: `
name: bad
cases:
  - name: no_method
`,
		},
		{
			name: "unknown expect kind",
			content: `
name: bad
cases:
  - name: c1
    method: starknet_chainId
    expect:
      kind: fuzzy
`,
		},
		{
			name: "error expectation without code",
			content: `
name: bad
cases:
  - name: c1
    method: starknet_chainId
    expect:
      kind: error
`,
		},
		{
			name: "unknown dependency",
			content: `
name: bad
cases:
  - name: c1
    method: starknet_chainId
    depends_on: [missing]
`,
		},
		{
			name: "duplicate case name",
			content: `
name: bad
cases:
  - name: c1
    method: starknet_chainId
  - name: c1
    method: starknet_blockNumber
`,
		},
		{
			name:    "empty suite",
			content: "name: bad\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeSuite(t, dir, "bad", tt.content)

			_, err := NewLoader(logrus.New(), dir).Load("bad")
			require.Error(t, err)
		})
	}
}

func TestLoadAll_SkipsInvalidFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSuite(t, dir, "good", `
name: good
cases:
  - name: c1
    method: starknet_chainId
`)
	writeSuite(t, dir, "broken", "name: broken\n")

	defs, err := NewLoader(logrus.New(), dir).LoadAll()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "good", defs[0].Name)
}

func TestState_BindAndSave(t *testing.T) {
	t.Parallel()

	state := NewState()

	response := json.RawMessage(`{"contract_address":"0xabc","transactions":[{"hash":"0x1"},{"hash":"0x2"}]}`)
	require.NoError(t, state.SaveFromResponse(map[string]string{
		"account_address": "result.contract_address",
		"second_tx":       "result.transactions.1.hash",
	}, response))

	bound, err := state.BindParams([]any{"latest", "$ref:account_address", map[string]any{"tx": "$ref:second_tx"}})
	require.NoError(t, err)

	assert.Equal(t, "latest", bound[0])
	assert.Equal(t, "0xabc", bound[1])
	assert.Equal(t, map[string]any{"tx": "0x2"}, bound[2])
}

func TestState_UnresolvedReferenceFails(t *testing.T) {
	t.Parallel()

	_, err := NewState().BindParams([]any{"$ref:missing"})
	require.Error(t, err)
}

func TestSuiteResult_Aggregation(t *testing.T) {
	t.Parallel()

	t.Run("required violation fails the suite", func(t *testing.T) {
		result := &SuiteResult{
			Name: "s",
			Cases: []*CaseResult{
				{Name: "a", Verdict: VerdictPass},
				{Name: "b", Verdict: VerdictPass},
				{Name: "c", Verdict: VerdictSchemaViolation},
			},
		}
		result.Finalize()
		assert.False(t, result.Passed)
	})

	t.Run("optional violation does not fail the suite", func(t *testing.T) {
		result := &SuiteResult{
			Name: "s",
			Cases: []*CaseResult{
				{Name: "a", Verdict: VerdictPass},
				{Name: "b", Verdict: VerdictPass},
				{Name: "c", Verdict: VerdictSchemaViolation, Optional: true},
			},
		}
		result.Finalize()
		assert.True(t, result.Passed)
	})

	t.Run("nested failure propagates", func(t *testing.T) {
		nested := &SuiteResult{Name: "inner", Cases: []*CaseResult{{Verdict: VerdictTransportError}}}
		nested.Finalize()

		result := &SuiteResult{Name: "outer", Suites: []*SuiteResult{nested}}
		result.Finalize()
		assert.False(t, result.Passed)
	})
}
