package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ligandPipeDatas() []PipeData {
	return []PipeData{
		NewInline("load", "PDB_DATA", "HEADER"),
		NewInline("load", "selection.json", `{"ligands": ["MOL", "ARQ"]}`),
		NewURL("run", "results.json", "http://artifacts/results.json").
			WithFetched(Content{Format: FormatJSON, Data: map[string]interface{}{
				"ligands": map[string]interface{}{"HEM": 1, "ARQ": 2},
			}}),
		NewURL("run", "pending.json", "http://artifacts/pending.json"),
	}
}

func TestGetLigandNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"MOL", "ARQ", "HEM"}, GetLigandNames(ligandPipeDatas()))
	assert.Empty(t, GetLigandNames([]PipeData{NewInline("load", "PDB_DATA", "HEADER")}))
	assert.Empty(t, GetLigandNames([]PipeData{NewInline("load", "bad.json", "{")}))
}

func TestSelectLigand(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		first, final string
	}{
		"switch between shared ligands": {first: "MOL", final: "ARQ"},
		"switch to other pipe ligand":   {first: "ARQ", final: "HEM"},
		"same name twice":               {first: "MOL", final: "MOL"},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			twice := SelectLigand(SelectLigand(ligandPipeDatas(), tc.first), tc.final)
			once := SelectLigand(ligandPipeDatas(), tc.final)
			assert.Equal(t, once, twice)

			got, ok := SelectedLigand(once)
			require.True(t, ok)
			assert.Equal(t, tc.final, got)
		})
	}
}

func TestSelectLigandMarksRelevantPipes(t *testing.T) {
	t.Parallel()

	got := SelectLigand(ligandPipeDatas(), "HEM")
	assert.Equal(t, "", got[0].SelectedLigand)
	assert.Equal(t, "", got[1].SelectedLigand)
	assert.Equal(t, "HEM", got[2].SelectedLigand)
	assert.Equal(t, "", got[3].SelectedLigand)
}

func TestAutoSelectLigand(t *testing.T) {
	t.Parallel()

	single := []PipeData{NewInline("load", "selection.json", `{"ligands": ["MOL"]}`)}
	got, ok := SelectedLigand(AutoSelectLigand(single))
	require.True(t, ok)
	assert.Equal(t, "MOL", got)

	_, ok = SelectedLigand(AutoSelectLigand(ligandPipeDatas()))
	assert.False(t, ok, "several candidates wait for the user")
}
