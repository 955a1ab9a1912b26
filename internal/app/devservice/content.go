package devservice

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Content generation constants.
const (
	minParagraphs      = 3
	maxExtraPara       = 5 // 3-7 paragraphs total
	minSentences       = 2
	maxExtraSent       = 4 // 2-5 sentences total
	minWords           = 8
	maxExtraWords      = 12  // 8-20 words total
	imageProbability   = 0.6 // chance of an image after each paragraph
	markdownImageShare = 0.5
)

// imageForms renders an image reference in each of the shapes authors use.
// The rewriter has to cope with all of them.
var imageForms = []func(faker *gofakeit.Faker, name string) string{
	// root relative
	func(f *gofakeit.Faker, name string) string {
		return fmt.Sprintf(`<img src="/images/%s.svg" alt="%s">`, name, f.Noun())
	},
	// document relative, self-closing
	func(_ *gofakeit.Faker, name string) string {
		return fmt.Sprintf(`<img src="../images/%s.svg" />`, name)
	},
	// external host with srcset and dimensions
	func(f *gofakeit.Faker, name string) string {
		return fmt.Sprintf(
			`<img class="wide" src="https://images.example.net/%s.jpg" srcset="https://images.example.net/%s@2x.jpg 2x" width="%d" height="%d" alt="%s">`,
			name, name, 320+f.IntN(640), 200+f.IntN(400), f.Adjective(),
		)
	},
	// single quotes, no alt
	func(_ *gofakeit.Faker, name string) string {
		return fmt.Sprintf(`<img src='/images/%s.svg' loading='lazy'>`, name)
	},
}

// generateHTML creates random paragraphs interleaved with images.
func generateHTML(faker *gofakeit.Faker) string {
	numParagraphs := minParagraphs + faker.IntN(maxExtraPara)

	var builder strings.Builder
	for i := range numParagraphs {
		builder.WriteString("<p>")
		builder.WriteString(generateParagraph(faker))
		builder.WriteString("</p>\n")
		if faker.Float64() < imageProbability {
			form := imageForms[faker.IntN(len(imageForms))]
			builder.WriteString(form(faker, imageName(faker, i)))
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// generateMarkdown creates random Markdown mixing image syntax and raw tags.
func generateMarkdown(faker *gofakeit.Faker) string {
	numParagraphs := minParagraphs + faker.IntN(maxExtraPara)

	var builder strings.Builder
	for i := range numParagraphs {
		builder.WriteString(generateParagraph(faker))
		builder.WriteString("\n\n")
		if faker.Float64() >= imageProbability {
			continue
		}
		name := imageName(faker, i)
		if faker.Float64() < markdownImageShare {
			fmt.Fprintf(&builder, "![%s](/images/%s.svg)\n\n", faker.Noun(), name)
		} else {
			builder.WriteString(imageForms[0](faker, name))
			builder.WriteString("\n\n")
		}
	}
	return builder.String()
}

func generateParagraph(faker *gofakeit.Faker) string {
	numSentences := minSentences + faker.IntN(maxExtraSent)
	sentences := make([]string, numSentences)
	for i := range numSentences {
		sentences[i] = faker.Sentence(minWords + faker.IntN(maxExtraWords))
	}
	return strings.Join(sentences, " ")
}

func imageName(faker *gofakeit.Faker, index int) string {
	return fmt.Sprintf("%s-%d", slugify(faker.Animal()), index)
}

func generateTitle(faker *gofakeit.Faker) string {
	patterns := []func(*gofakeit.Faker) string{
		func(f *gofakeit.Faker) string { return fmt.Sprintf("The %s %s", f.Adjective(), f.Noun()) },
		func(f *gofakeit.Faker) string { return fmt.Sprintf("A %s of %s", f.Noun(), f.Noun()) },
		func(f *gofakeit.Faker) string {
			return fmt.Sprintf("%s and %s", titleCase(f.Noun()), titleCase(f.Noun()))
		},
		func(f *gofakeit.Faker) string { return fmt.Sprintf("Notes on %s", f.Animal()) },
	}
	return patterns[faker.IntN(len(patterns))](faker)
}

func titleCase(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func slugify(title string) string {
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
}
