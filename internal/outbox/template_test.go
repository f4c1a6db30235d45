package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

func TestResolveTemplatePrefersTenantVariant(t *testing.T) {
	store := NewInMemoryTemplateStore()
	store.Put(Template{ID: "welcome", TenantID: "", Code: "WEL-G", Body: "global", Active: true})
	store.Put(Template{ID: "welcome", TenantID: "tenant-1", Code: "WEL-T", Body: "tenant", Active: true})

	tmpl, err := ResolveTemplate(context.Background(), store, "tenant-1", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "WEL-T", tmpl.Code)
}

func TestResolveTemplateFallsBackToGlobal(t *testing.T) {
	store := NewInMemoryTemplateStore()
	store.Put(Template{ID: "welcome", TenantID: "", Code: "WEL-G", Body: "global", Active: true})
	store.Put(Template{ID: "welcome", TenantID: "tenant-1", Code: "WEL-T", Body: "tenant", Active: false})

	tmpl, err := ResolveTemplate(context.Background(), store, "tenant-1", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "WEL-G", tmpl.Code, "inactive tenant variant must not win")
}

func TestResolveTemplateNoActiveVariantIsConfigError(t *testing.T) {
	store := NewInMemoryTemplateStore()
	store.Put(Template{ID: "welcome", TenantID: "", Code: "WEL-G", Body: "global", Active: false})

	_, err := ResolveTemplate(context.Background(), store, "tenant-1", "welcome")
	assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
}

func TestRenderTemplateSubstitutesPlaceholders(t *testing.T) {
	body := "#{student}님의 #{month}월 수강료 안내입니다."
	rendered, err := RenderTemplate(body, map[string]string{"student": "김민준", "month": "3"})
	require.NoError(t, err)
	assert.Equal(t, "김민준님의 3월 수강료 안내입니다.", rendered)
}

func TestRenderTemplateUnresolvedPlaceholderIsConfigError(t *testing.T) {
	_, err := RenderTemplate("hello #{name}", map[string]string{})
	assert.True(t, dErrors.Is(err, dErrors.CodeConfig))
}
