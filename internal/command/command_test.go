package command

import (
	"bufio"
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolasapp/cirrus/internal/app/devservice"
)

const testConfig = `log_level: ERROR
upstream_uri: https://upstream.example.com/
site_url: https://example.com
cloudinary:
  cloud_name: demo
`

const deliveryPrefix = "https://res.cloudinary.com/demo/image/fetch/f_auto,q_auto/"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cirrus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := RootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestRewriteCommand(t *testing.T) {
	cfgPath := writeConfig(t, testConfig)
	dir := t.TempDir()
	htmlFile := filepath.Join(dir, "post.html")
	require.NoError(t, os.WriteFile(htmlFile, []byte(`<img src="cat.png">`), 0o600))
	mdFile := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(mdFile, []byte(`![Cat](/cat.png)`), 0o600))

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name:  "stdin",
			stdin: ` <img src="cat.png" /> `,
			args:  []string{"rewrite", "--path", "/blog/post.html"},
			want:  `<img src="` + deliveryPrefix + `https://example.com/blog/cat.png" alt="">`,
		},
		{
			name: "file",
			args: []string{"rewrite", htmlFile},
			want: `<img src="` + deliveryPrefix + `https://example.com/cat.png" alt="">`,
		},
		{
			name: "domain override",
			args: []string{"rewrite", "--domain", "https://cdn-origin.example.org/", htmlFile},
			want: `<img src="` + deliveryPrefix + `https://cdn-origin.example.org/cat.png" alt="">`,
		},
		{
			name: "markdown input",
			args: []string{"rewrite", mdFile},
			want: `<p><img src="` + deliveryPrefix + `https://example.com/cat.png" alt="Cat"></p>`,
		},
		{
			name: "markdown output",
			args: []string{"rewrite", "--markdown", mdFile},
			want: `![Cat](` + deliveryPrefix + `https://example.com/cat.png)`,
		},
		{
			name:  "explicit content type",
			stdin: `![Cat](cat.png)`,
			args:  []string{"rewrite", "--content-type", "text/markdown", "--path", "/notes/"},
			want:  `<p><img src="` + deliveryPrefix + `https://example.com/notes/cat.png" alt="Cat"></p>`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			args := append([]string{"-c", cfgPath}, test.args...)
			out, err := execute(t, test.stdin, args...)
			require.NoError(t, err)
			assert.Equal(t, test.want, strings.TrimSpace(out))
		})
	}
}

func TestRewriteCommand_Passthrough(t *testing.T) {
	cfgPath := writeConfig(t, "log_level: ERROR\nupstream_uri: https://example.com\n")
	out, err := execute(t, `<img src="cat.png">`, "-c", cfgPath, "rewrite")
	require.NoError(t, err)
	assert.Equal(t, `<img src="cat.png">`, out)
}

func TestRewriteCommand_Errors(t *testing.T) {
	cfgPath := writeConfig(t, testConfig)

	_, err := execute(t, "", "-c", cfgPath, "rewrite", filepath.Join(t.TempDir(), "missing.html"))
	require.Error(t, err)

	_, err = execute(t, "{}", "-c", cfgPath, "rewrite", "--content-type", "application/json")
	require.Error(t, err)

	_, err = execute(t, "", "-c", writeConfig(t, "bogus: true\n"), "rewrite")
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	up := httptest.NewServer(devservice.New(9))
	t.Cleanup(up.Close)
	cfgPath := writeConfig(t, "log_level: ERROR\nupstream_uri: "+up.URL+"/\ncloudinary:\n  cloud_name: demo\n")
	dir := t.TempDir()

	_, err := execute(t, "", "-c", cfgPath, "export", "--depth", "2", dir)
	require.NoError(t, err)

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), deliveryPrefix+up.URL+"/images/thumb-0.svg")
	assert.FileExists(t, filepath.Join(dir, "about", "index.html"))

	_, err = execute(t, "", "-c", cfgPath, "export")
	require.Error(t, err, "directory is required")
}

func TestReadLine(t *testing.T) {
	t.Parallel()

	reader := bufio.NewReader(strings.NewReader("https://example.com\r\n  demo \nlast"))
	for _, want := range []string{"https://example.com", "demo", "last"} {
		got, err := readLine(reader)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err := readLine(reader)
	require.ErrorIs(t, err, io.EOF)
}

func TestContentTypeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text/markdown", contentTypeOf("notes/a.md"))
	assert.Equal(t, "text/markdown", contentTypeOf("A.MARKDOWN"))
	assert.Equal(t, "text/html", contentTypeOf("index.html"))
	assert.Equal(t, "text/html", contentTypeOf("stdin"))
}
