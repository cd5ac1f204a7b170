package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-observer-go/models"
)

func TestBuiltinCatalogsAreValid(t *testing.T) {
	for _, m := range []models.Method{models.MethodAdults, models.MethodTeens, models.MethodKids} {
		tpl := Builtin(m)
		require.NoError(t, tpl.Validate(), "method %s", m)
		assert.Equal(t, m, tpl.Method)
	}
}

func TestBuiltinSelectsByMethod(t *testing.T) {
	teens := Builtin(models.MethodTeens)
	adults := Builtin(models.MethodAdults)
	kids := Builtin(models.MethodKids)

	assert.Equal(t, "hw1", teens.IDs()[0])
	assert.Contains(t, teens.IDs(), "v1")
	assert.Contains(t, teens.IDs(), "o4")
	assert.NotContains(t, adults.IDs(), "v1")
	assert.Contains(t, adults.IDs(), "ii1")
	assert.Equal(t, adults.IDs(), kids.IDs())
}

func TestItemsKeepSectionOrderAndCategory(t *testing.T) {
	items := Builtin(models.MethodTeens).Items()
	require.NotEmpty(t, items)
	assert.Equal(t, "Homework", items[0].Category)
	assert.Equal(t, "v1", items[1].ID)
	assert.Equal(t, "Vocabulary", items[1].Category)
	assert.Equal(t, "Tocar o áudio completo", items[1].Text)
}

func TestBuiltinReturnsIndependentCopies(t *testing.T) {
	a := Builtin(models.MethodTeens)
	a.Sections[0].Items[0].Text = "changed"
	b := Builtin(models.MethodTeens)
	assert.NotEqual(t, "changed", b.Sections[0].Items[0].Text)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	tpl := Template{Sections: []Section{
		{ID: "a", Category: "A", Items: []Item{{ID: "x", Text: "one"}}},
		{ID: "b", Category: "B", Items: []Item{{ID: "x", Text: "two"}}},
	}}
	assert.Error(t, tpl.Validate())
	assert.Error(t, Template{}.Validate())
	assert.Error(t, Template{Sections: []Section{{Items: []Item{{ID: "", Text: "t"}}}}}.Validate())
}
