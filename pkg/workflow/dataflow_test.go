package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePipeDatas() PipeDatasByWidget {
	var p PipeDatasByWidget
	p = Set(p, NewInline(EnterEmailWidgetID, EmailPipe, "a@b.com"))
	p = Set(p, NewInline("load", "PDB_DATA", "HEADER"))
	p = Set(p, NewURL("load", "prep.pdb", "http://artifacts/prep.pdb"))
	p = Set(p, NewURL("run", "results.json", "http://artifacts/results.json"))

	return p
}

func groups(p PipeDatasByWidget) map[string]map[string]PipeData {
	res := map[string]map[string]PipeData{}
	for _, id := range p.WidgetIDs() {
		res[id] = map[string]PipeData{}
		for _, pd := range p.Of(id) {
			res[id][pd.PipeName] = pd
		}
	}

	return res
}

func TestFlattenUnflatten(t *testing.T) {
	t.Parallel()

	tcs := map[string]PipeDatasByWidget{
		"empty":  {},
		"sample": samplePipeDatas(),
		"single": Set(PipeDatasByWidget{}, NewInline("load", "PDB_DATA", "x")),
	}

	for name, p := range tcs {
		p := p
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			flat := Flatten(p)
			assert.Len(t, flat, p.Len())
			assert.Equal(t, groups(p), groups(Unflatten(flat)))
		})
	}
}

func TestFlattenWidgetOrder(t *testing.T) {
	t.Parallel()

	flat := Flatten(samplePipeDatas())
	require.Len(t, flat, 4)
	assert.Equal(t, EnterEmailWidgetID, flat[0].WidgetID)
	assert.Equal(t, "PDB_DATA", flat[1].PipeName)
	assert.Equal(t, "prep.pdb", flat[2].PipeName)
	assert.Equal(t, "run", flat[3].WidgetID)
}

func TestUnflattenLastWins(t *testing.T) {
	t.Parallel()

	p := Unflatten([]PipeData{
		NewInline("load", "PDB_DATA", "first"),
		NewInline("load", "PDB_DATA", "second"),
	})

	require.Len(t, p.Of("load"), 1)
	assert.Equal(t, "second", p.Of("load")[0].Value)
}

func TestSet(t *testing.T) {
	t.Parallel()

	t.Run("replace keeps one entry per key", func(t *testing.T) {
		t.Parallel()

		p := samplePipeDatas()
		p2 := Set(p, NewInline("load", "prep.pdb", "ATOM"))

		assert.Equal(t, p.Len(), p2.Len())
		got, ok := Get(p2, Pipe{Name: "prep.pdb", SourceWidgetID: "load"})
		require.True(t, ok)
		assert.Equal(t, KindInline, got.Type)
		assert.Equal(t, "ATOM", got.Value)

		old, ok := Get(p, Pipe{Name: "prep.pdb", SourceWidgetID: "load"})
		require.True(t, ok)
		assert.Equal(t, KindURL, old.Type, "the original map is left untouched")
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		pd := NewInline("run", "jobId", "42")
		once := Set(samplePipeDatas(), pd)
		twice := Set(once, pd)

		assert.Equal(t, groups(once), groups(twice))
		assert.Equal(t, once.Len(), twice.Len())
	})

	t.Run("append new widget", func(t *testing.T) {
		t.Parallel()

		p := Set(samplePipeDatas(), NewInline("results", "done", "yes"))
		assert.Equal(t, []string{EnterEmailWidgetID, "load", "run", "results"}, p.WidgetIDs())
	})

	t.Run("set all", func(t *testing.T) {
		t.Parallel()

		p := SetAll(PipeDatasByWidget{}, []PipeData{
			NewInline("a", "x", "1"),
			NewInline("a", "x", "2"),
			NewInline("b", "y", "3"),
		})
		assert.Equal(t, 2, p.Len())
	})
}

func TestGetPipeDatas(t *testing.T) {
	t.Parallel()

	p := samplePipeDatas()
	pipes := []Pipe{
		{Name: "prep.pdb", SourceWidgetID: "load"},
		{Name: "missing", SourceWidgetID: "load"},
		{Name: EmailPipe, SourceWidgetID: EnterEmailWidgetID},
	}

	got := GetPipeDatas(pipes, p)
	require.Len(t, got, 2)
	assert.Equal(t, "prep.pdb", got[0].PipeName)
	assert.Equal(t, EmailPipe, got[1].PipeName)

	assert.Equal(t, []Pipe{{Name: "missing", SourceWidgetID: "load"}}, MissingPipes(pipes, p))

	_, ok := Get(p, Pipe{Name: "prep.pdb", SourceWidgetID: "run"})
	assert.False(t, ok)
}
