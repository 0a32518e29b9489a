package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacpipe/stacpipe/internal/stage"
)

func validDoc() *Document {
	return &Document{
		Name: "test-workflow",
		Steps: []Step{
			{ID: "seed", Module: stage.KindSeed, Config: map[string]any{}},
			{ID: "output", Module: stage.KindOutput, Config: map[string]any{}, DependsOn: []string{"seed"}},
		},
	}
}

func TestValidate_AcceptsWellFormedDocument(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(validDoc()))
}

func TestValidate_RejectsDuplicateStepIDs(t *testing.T) {
	t.Parallel()

	doc := validDoc()
	doc.Steps[1].ID = "seed"
	require.Error(t, Validate(doc))
}

func TestValidate_RejectsUnknownModule(t *testing.T) {
	t.Parallel()

	doc := validDoc()
	doc.Steps[0].Module = stage.Kind("NotAModule")
	require.Error(t, Validate(doc))
}

func TestValidate_RejectsDependencyOnUnknownStep(t *testing.T) {
	t.Parallel()

	doc := validDoc()
	doc.Steps[1].DependsOn = []string{"does-not-exist"}
	require.Error(t, Validate(doc))
}

func TestValidate_DetectsDirectCycle(t *testing.T) {
	t.Parallel()

	doc := &Document{
		Name: "cyclic",
		Steps: []Step{
			{ID: "a", Module: stage.KindUpdate, DependsOn: []string{"b"}},
			{ID: "b", Module: stage.KindUpdate, DependsOn: []string{"a"}},
		},
	}
	err := Validate(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestValidate_DetectsIndirectCycle(t *testing.T) {
	t.Parallel()

	doc := &Document{
		Name: "cyclic",
		Steps: []Step{
			{ID: "a", Module: stage.KindUpdate, DependsOn: []string{"c"}},
			{ID: "b", Module: stage.KindUpdate, DependsOn: []string{"a"}},
			{ID: "c", Module: stage.KindUpdate, DependsOn: []string{"b"}},
		},
	}
	require.Error(t, Validate(doc))
}

func TestValidate_RejectsStepIDWithInvalidCharacters(t *testing.T) {
	t.Parallel()

	doc := validDoc()
	doc.Steps[0].ID = "has a space"
	require.Error(t, Validate(doc))
}

func TestValidate_RejectsEmptyStepsList(t *testing.T) {
	t.Parallel()

	doc := &Document{Name: "empty"}
	require.Error(t, Validate(doc))
}

func TestValidate_NilDocumentIsConfigurationError(t *testing.T) {
	t.Parallel()
	require.Error(t, Validate(nil))
}
