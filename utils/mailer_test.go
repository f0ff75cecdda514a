package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmreach/models"
)

func TestRenderTemplate(t *testing.T) {
	tmpl := models.Template{
		Subject: "Welcome, {{.FirstName}}",
		Body:    "<p>Hi {{.FirstName}}, this went to {{.Email}}.</p>",
	}
	subscriber := models.Subscriber{
		Email:     "dana@example.com",
		FirstName: "Dana",
	}

	subject, body, err := RenderTemplate(tmpl, subscriber)
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Dana", subject)
	assert.Contains(t, body, "Hi Dana")
	assert.Contains(t, body, "dana@example.com")
}

func TestRenderTemplateMissingFirstName(t *testing.T) {
	tmpl := models.Template{
		Subject: "Hello {{.FirstName}}",
		Body:    "<p>Hi {{.FirstName}}.</p>",
	}

	subject, body, err := RenderTemplate(tmpl, models.Subscriber{Email: "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", subject)
	assert.Contains(t, body, "Hi there")
}

func TestRenderTemplateBadSyntax(t *testing.T) {
	tmpl := models.Template{
		Subject: "ok",
		Body:    "{{.Broken",
	}

	_, _, err := RenderTemplate(tmpl, models.Subscriber{})
	assert.Error(t, err)
}
