// Package devservice provides a fake upstream site for development and testing.
// It serves a small blog whose pages reference images in every form the
// rewriter understands.
package devservice

import (
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Corpus generation constants.
const (
	minPosts      = 5
	maxExtraPosts = 6 // 5-10 posts total
	minNotes      = 2
	maxExtraNotes = 3 // 2-4 notes total
)

// Seed returns the dev service seed from the DEV_SERVICE_SEED environment
// variable, or a random value if not set.
func Seed() uint64 {
	if env := os.Getenv("DEV_SERVICE_SEED"); env != "" {
		if seed, err := strconv.ParseUint(env, 10, 64); err == nil {
			return seed
		}
	}
	return rand.Uint64() //nolint:gosec // intentionally weak random for test data
}

// page is a generated document.
type page struct {
	slug       string
	title      string
	updateTime time.Time
	body       string
}

// Service is an HTTP server that serves a fake blog.
type Service struct {
	mux   *http.ServeMux
	posts []page // HTML, under /blog/
	notes []page // Markdown, under /notes/
	about page
}

// New creates a new dev service with a seeded random corpus.
func New(seed uint64) *Service {
	faker := gofakeit.New(seed)
	svc := &Service{mux: http.NewServeMux()}
	svc.generateCorpus(faker)
	svc.registerRoutes()
	return svc
}

// ServeHTTP satisfies [http.Handler].
func (s *Service) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	s.mux.ServeHTTP(writer, request)
}

// PostPaths lists the paths of every generated HTML post.
func (s *Service) PostPaths() []string {
	paths := make([]string, len(s.posts))
	for i, post := range s.posts {
		paths[i] = "/blog/" + post.slug + ".html"
	}
	return paths
}

// NotePaths lists the paths of every generated Markdown note.
func (s *Service) NotePaths() []string {
	paths := make([]string, len(s.notes))
	for i, note := range s.notes {
		paths[i] = "/notes/" + note.slug + ".md"
	}
	return paths
}

func (s *Service) generateCorpus(faker *gofakeit.Faker) {
	numPosts := minPosts + faker.IntN(maxExtraPosts)
	for range numPosts {
		s.posts = append(s.posts, generatePage(faker, generateHTML))
	}
	numNotes := minNotes + faker.IntN(maxExtraNotes)
	for range numNotes {
		s.notes = append(s.notes, generatePage(faker, generateMarkdown))
	}
	s.about = page{
		slug:       "about",
		title:      "About",
		updateTime: time.Now(),
		body: fmt.Sprintf(`<p>%s</p>`+"\n"+`<img src="team.svg" alt="The team">`,
			generateParagraph(faker)),
	}

	// Sort posts by updateTime descending
	slices.SortFunc(s.posts, func(a, b page) int {
		return b.updateTime.Compare(a.updateTime)
	})
}

func generatePage(faker *gofakeit.Faker, body func(*gofakeit.Faker) string) page {
	title := generateTitle(faker)
	return page{
		slug:  slugify(title),
		title: title,
		updateTime: faker.DateRange(
			time.Now().AddDate(-1, 0, 0),
			time.Now(),
		),
		body: body(faker),
	}
}

func (s *Service) registerRoutes() {
	// Root page - list of posts with thumbnails
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	// Post page - HTML content
	s.mux.HandleFunc("GET /blog/{file}", s.handlePost)

	// Note page - Markdown content
	s.mux.HandleFunc("GET /notes/{file}", s.handleNote)

	// Directory-style page with a document-relative image
	s.mux.HandleFunc("GET /about/{$}", s.handleAbout)

	// Placeholder images
	s.mux.HandleFunc("GET /images/{file}", s.handleImage)
	s.mux.HandleFunc("GET /about/{file}", s.handleImage)
}

func (s *Service) handleRoot(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("Last-Modified", time.Now().Format(http.TimeFormat))

	writeString(writer, `<!DOCTYPE html><html><head><title>Blog</title></head><body><ul>`)
	for i, post := range s.posts {
		writef(writer, `<li><img src="images/thumb-%d.svg"><a href="/blog/%s.html">%s</a></li>`,
			i, post.slug, post.title)
	}
	for _, note := range s.notes {
		writef(writer, `<li><a href="/notes/%s.md">%s</a></li>`, note.slug, note.title)
	}
	writeString(writer, `</ul><a href="/about/">About</a></body></html>`)
}

func (s *Service) handlePost(writer http.ResponseWriter, request *http.Request) {
	post := find(s.posts, strings.TrimSuffix(request.PathValue("file"), ".html"))
	if post == nil || !strings.HasSuffix(request.PathValue("file"), ".html") {
		http.NotFound(writer, request)
		return
	}

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("Last-Modified", post.updateTime.Format(http.TimeFormat))
	writef(writer, `<!DOCTYPE html><html><head><title>%s</title></head><body>`, post.title)
	// same-site absolute header image
	writef(writer, `<img src="http://%s/images/%s-header.svg" alt="%s">`, request.Host, post.slug, post.title)
	writef(writer, "\n<h1>%s</h1>\n%s</body></html>", post.title, post.body)
}

func (s *Service) handleNote(writer http.ResponseWriter, request *http.Request) {
	note := find(s.notes, strings.TrimSuffix(request.PathValue("file"), ".md"))
	if note == nil || !strings.HasSuffix(request.PathValue("file"), ".md") {
		http.NotFound(writer, request)
		return
	}

	writer.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	writer.Header().Set("Last-Modified", note.updateTime.Format(http.TimeFormat))
	writef(writer, "# %s\n\n%s", note.title, note.body)
}

func (s *Service) handleAbout(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("Last-Modified", s.about.updateTime.Format(http.TimeFormat))
	writef(writer, `<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>`,
		s.about.title, s.about.body)
}

// handleImage serves a flat SVG whose color derives from the file name.
func (s *Service) handleImage(writer http.ResponseWriter, request *http.Request) {
	file := request.PathValue("file")
	if !strings.HasSuffix(file, ".svg") {
		http.NotFound(writer, request)
		return
	}
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(file))

	writer.Header().Set("Content-Type", "image/svg+xml")
	writer.Header().Set("Cache-Control", "public, max-age=86400")
	writef(writer,
		`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64"><rect width="64" height="64" fill="#%06x"/></svg>`,
		hash.Sum32()&0xffffff,
	)
}

func find(pages []page, slug string) *page {
	for i := range pages {
		if pages[i].slug == slug {
			return &pages[i]
		}
	}
	return nil
}

// writeString writes a string to the writer, discarding any error.
// Errors are ignored since this is test/dev infrastructure where write failures
// are unrecoverable and will manifest as test failures anyway.
func writeString(writer io.Writer, str string) {
	_, _ = io.WriteString(writer, str)
}

// writef writes a formatted string to the writer, discarding any error.
// See writeString for rationale on discarded errors.
func writef(writer io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(writer, format, args...)
}
