package rewrite

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplate = `<img src="https://res.example/{cloud_name}/fetch/{image_url}" {attributes}>`

func testConfig() *Config {
	return &Config{CloudName: "demo", Template: testTemplate}
}

func testRequestContext() RequestContext {
	return RequestContext{SiteDomain: "https://example.com", CurrentPath: "/blog/"}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no images trimmed only",
			input: "\n  <p>Hello</p>\t",
			want:  "<p>Hello</p>",
		},
		{
			name:  "root relative source with extra attribute",
			input: `<img src="/a.png" title="x">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/a.png" title="x" alt="">`,
		},
		{
			name:  "document relative source",
			input: `<img src="a.png">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="">`,
		},
		{
			name:  "external absolute source unchanged",
			input: `<img src="https://cdn.other.com/a.png" alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://cdn.other.com/a.png" alt="A">`,
		},
		{
			name:  "plain http source unchanged",
			input: `<img src="http://cdn.other.com/a.png" alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/http://cdn.other.com/a.png" alt="A">`,
		},
		{
			name:  "same site absolute source unchanged",
			input: `<img src="https://example.com/img/a.png" alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/img/a.png" alt="A">`,
		},
		{
			name:  "self closing with spaces",
			input: `<img src="a.png" alt="A" />`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="A">`,
		},
		{
			name:  "self closing without spaces",
			input: `<img src="a.png"/>`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="">`,
		},
		{
			name:  "srcset dropped",
			input: `<img srcset="a-2x.png 2x, a-3x.png 3x" src="a.png" alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="A">`,
		},
		{
			name:  "single quotes normalized",
			input: `<img src='a.png' class='wide' alt='A'>`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" class="wide" alt="A">`,
		},
		{
			name:  "attribute order preserved",
			input: `<img width="10" alt="A" src="a.png" height="20">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" width="10" alt="A" height="20">`,
		},
		{
			name:  "attribute names lowercased by the parser",
			input: `<img SRC="a.png" ALT="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="A">`,
		},
		{
			name:  "entities re-escaped",
			input: `<img src="a.png" title="Tom &amp; Jerry" alt='say "hi"'>`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" title="Tom &amp; Jerry" alt="say &quot;hi&quot;">`,
		},
		{
			name:  "boolean attribute rendered empty",
			input: `<img src="a.png" hidden alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" hidden="" alt="A">`,
		},
		{
			name:  "surrounding markup untouched",
			input: `<p class="lead">Look: <img src="/a.png" alt="A"> <b>bold</b></p>`,
			want:  `<p class="lead">Look: <img src="https://res.example/demo/fetch/https://example.com/a.png" alt="A"> <b>bold</b></p>`,
		},
		{
			name:  "uppercase tag not discovered",
			input: `<IMG src="a.png">`,
			want:  `<IMG src="a.png">`,
		},
		{
			name:  "tag that does not parse to img is rendered degenerate",
			input: `<imgur data-x="1">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/" alt="">`,
		},
		{
			name:  "missing src resolves to the current directory",
			input: `<img alt="A">`,
			want:  `<img src="https://res.example/demo/fetch/https://example.com/blog/" alt="A">`,
		},
		{
			name:  "identical tags all replaced",
			input: `<img src="a.png"><p>between</p><img src="a.png">`,
			want: `<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="">` +
				`<p>between</p>` +
				`<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" alt="">`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := Convert(test.input, testConfig(), testRequestContext())
			assert.Equal(t, test.want, got)
		})
	}
}

func TestConvert_Passthrough(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		`  <img src="cat.png">  `,
		`<p>no images</p>`,
		`<img src="/a.png" srcset="a-2x.png 2x">`,
	}
	for _, input := range inputs {
		assert.Equal(t, input, Convert(input, nil, testRequestContext()))
	}
}

func TestConvert_EndToEnd(t *testing.T) {
	t.Parallel()

	rc := NewRequestContext("https://example.com", "/blog/post.html")
	require.Equal(t, "/blog/", rc.CurrentPath)

	got := Convert("  <img src=\"cat.png\">  ", testConfig(), rc)
	assert.Equal(t,
		`<img src="https://res.example/demo/fetch/https://example.com/blog/cat.png" alt="">`,
		got,
	)
}

func TestConvert_TagCountPreserved(t *testing.T) {
	t.Parallel()

	input := `
<article>
  <img src="/hero.jpg" alt="Hero">
  <p>Intro <img src="inline.gif"></p>
  <figure><img src="https://cdn.other.com/c.png" srcset="c2.png 2x" /></figure>
  <img src="inline.gif">
  <imgur>
</article>`

	got := Convert(input, testConfig(), testRequestContext())
	assert.Len(t, FindTags(got), len(FindTags(input)))
	assert.NotContains(t, got, "srcset")
	for _, tag := range FindTags(got) {
		assert.Contains(t, tag.Literal, "alt=")
		assert.Contains(t, tag.Literal, `src="https://res.example/demo/fetch/`)
	}
}

func TestConvert_UnknownPlaceholdersKept(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		CloudName: "demo",
		Template:  `<img src="{image_url}" data-cloud="{cloud_name}" data-x="{unknown}" {attributes}>`,
	}
	got := Convert(`<img src="/a.png">`, cfg, testRequestContext())
	assert.Equal(t,
		`<img src="https://example.com/a.png" data-cloud="demo" data-x="{unknown}" alt="">`,
		got,
	)
}

func TestConvert_DoubleApplication(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	rc := testRequestContext()
	input := `<p><img src="/a.png" title="x"> and <img src="b.png" srcset="b2.png 2x"></p>`

	once := Convert(input, cfg, rc)
	twice := Convert(once, cfg, rc)
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "https://res.example/demo/fetch/https://example.com/a.png"))
	assert.NotContains(t, twice, "fetch/https://res.example")
}

func TestConvert_AlreadyDeliveredSource(t *testing.T) {
	t.Parallel()

	input := `<img src="https://res.example/demo/fetch/https://example.com/a.png" srcset="a2.png 2x">`
	want := `<img src="https://res.example/demo/fetch/https://example.com/a.png" alt="">`

	got := Convert(input, testConfig(), testRequestContext())
	assert.Equal(t, want, got)
	assert.Equal(t, want, Convert(got, testConfig(), testRequestContext()))
}

func TestConvert_StrayBraceInTemplate(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		CloudName: "demo",
		Template:  `<img data-json="{" src="https://res.example/{cloud_name}/fetch/{image_url}" {attributes}>`,
	}
	got := Convert(`<img src="/a.png">`, cfg, testRequestContext())
	assert.Equal(t,
		`<img data-json="{" src="https://res.example/demo/fetch/https://example.com/a.png" alt="">`,
		got,
	)
}

func TestFindTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []Tag
	}{
		{
			name:  "plain",
			input: `<p><img src="a.png" alt="A"></p>`,
			want:  []Tag{{Literal: `<img src="a.png" alt="A">`, Attrs: ` src="a.png" alt="A"`}},
		},
		{
			name:  "self closing slash stripped",
			input: `<img src="a.png" />`,
			want:  []Tag{{Literal: `<img src="a.png" />`, Attrs: ` src="a.png" `}},
		},
		{
			name:  "self closing without space",
			input: `<img src="a.png"/>`,
			want:  []Tag{{Literal: `<img src="a.png"/>`, Attrs: ` src="a.png"`}},
		},
		{
			name:  "in order with duplicates",
			input: `<img src="b"><img src="a"><img src="b">`,
			want: []Tag{
				{Literal: `<img src="b">`, Attrs: ` src="b"`},
				{Literal: `<img src="a">`, Attrs: ` src="a"`},
				{Literal: `<img src="b">`, Attrs: ` src="b"`},
			},
		},
		{
			name:  "none",
			input: `<IMG src="a.png"><p>text</p>`,
			want:  []Tag{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.want, FindTags(test.input))
		})
	}
}

func TestConvert_DefaultTemplate(t *testing.T) {
	t.Parallel()

	cfg := &Config{CloudName: "acme", Template: DefaultTemplate}
	got := Convert(`<img src="/a.png" alt="A">`, cfg, testRequestContext())
	want := `<img src="https://res.cloudinary.com/acme/image/fetch/f_auto,q_auto/https://example.com/a.png" alt="A">`
	assert.Equal(t, want, got)
	assert.Equal(t, want, Convert(got, cfg, testRequestContext()))
}

func TestConvert_NoAttributeLeakBetweenTags(t *testing.T) {
	t.Parallel()

	got := Convert(`<img src="a.png" title="first" class="c"><img src="b.png">`,
		testConfig(), testRequestContext())
	assert.Equal(t,
		`<img src="https://res.example/demo/fetch/https://example.com/blog/a.png" title="first" class="c" alt="">`+
			`<img src="https://res.example/demo/fetch/https://example.com/blog/b.png" alt="">`,
		got,
	)
}

func TestConvert_Concurrent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	rc := testRequestContext()
	input := `<img src="a.png" title="t"><img src="/b.png">`
	want := Convert(input, cfg, rc)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = Convert(input, cfg, rc)
		}()
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
