package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/statemachine"
	"github.com/roach88/revkit/internal/store"
)

// ArticleDefinition is the record type most tests use:
//
//	draft --manual--> active --structural-change--> draft
//	draft|active --manual--> archived (terminal, not editable)
//
// content is structural, label is not, slug is static and generated.
func ArticleDefinition() schema.EntityType {
	no := false
	return schema.EntityType{
		Name:       "article",
		LabelField: "label",
		Fields: []schema.Field{
			{Name: "label", Type: schema.TypeString, Required: true, ChangeType: "set label"},
			{Name: "content", Type: schema.TypeString, Structural: true},
			{Name: "slug", Type: schema.TypeString, Static: true, Generator: "uuid"},
			{Name: "priority", Type: schema.TypeInt, Default: 0},
			{Name: "published_at", Type: schema.TypeDate},
			{Name: "featured", Type: schema.TypeBool},
		},
		Definition: statemachine.Definition{
			States: []statemachine.State{
				{Name: "draft", Initial: true},
				{Name: "active"},
				{Name: "archived", Terminal: true, Editable: &no},
			},
			Transitions: []statemachine.Transition{
				{From: "draft", To: "active", On: statemachine.OnManual},
				{From: "active", To: "draft", On: statemachine.OnStructuralChange},
				{From: "draft", To: "archived", On: statemachine.OnManual},
				{From: "active", To: "archived", On: statemachine.OnManual},
			},
		},
	}
}

// ArticleType registers ArticleDefinition.
func ArticleType(t testing.TB) *schema.Type {
	t.Helper()
	typ, err := schema.Register(ArticleDefinition())
	require.NoError(t, err)
	return typ
}

// OpenStore opens a fresh sqlite store in a temp directory.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
