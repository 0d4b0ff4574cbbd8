package core

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/trezcool/shule/fs"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

func TestParseEmailTemplates(t *testing.T) {
	conf := NewTestConfig()

	t.Run("embedded templates", func(t *testing.T) {
		require.NoError(t, ParseEmailTemplates(appfs.FS, conf, discardLogger{}))

		for _, name := range []string{"admission_credentials", "password_reset", "payslip", "wallet_funded"} {
			for _, ext := range []string{".txt", ".gohtml"} {
				msg := EmailMessage{TemplateName: name}
				_, ok := msg.getTemplate(ext)
				assert.True(t, ok, "%s%s not cached", name, ext)
			}
		}

		msg := EmailMessage{
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Jon", "UID": "uid", "Token": "tkn"},
		}
		require.NoError(t, msg.Render())
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Hello Jon,")
		assert.Contains(t, msg.TextContent, "/password-reset/uid/tkn")
		assert.Contains(t, msg.TextContent, "The "+conf.AppName+" Team")
		assert.Contains(t, msg.HTMLContent, "<p>Hello Jon,</p>")
	})

	t.Run("missing base template", func(t *testing.T) {
		fsys := fstest.MapFS{
			"templates/email/welcome.txt": {Data: []byte(`{{define "content"}}hi{{end}}`)},
		}
		err := ParseEmailTemplates(fsys, conf, discardLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "templates/email/welcome.txt")

		lenient := *conf
		lenient.TestMode = false
		lenient.Debug = false
		assert.NoError(t, ParseEmailTemplates(fsys, &lenient, discardLogger{}))
	})

	t.Run("no templates", func(t *testing.T) {
		assert.Error(t, ParseEmailTemplates(fstest.MapFS{}, conf, discardLogger{}))
	})

	// restore the embedded templates for the other tests of the package
	require.NoError(t, ParseEmailTemplates(appfs.FS, conf, discardLogger{}))
}
