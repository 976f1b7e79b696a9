// Package e2e provides end-to-end tests that run a corpus of stories through the storyboard pipeline.
package e2e

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/emaki/internal/models"
)

// Topic is a subject whose sentences all mention Word and no other topic word.
type Topic struct {
	Word      string
	Sentences []string
}

// Topics are the subjects stories are built from.
var Topics = []Topic{
	{"dragon", []string{"A dragon slept under the hill", "The dragon woke at dusk"}},
	{"castle", []string{"The castle stood on a cliff", "Guards walked the castle walls"}},
	{"harbor", []string{"Boats crowded the harbor", "The harbor smelled of salt and tar"}},
	{"forest", []string{"The forest grew dark and quiet", "Owls called across the forest"}},
	{"desert", []string{"Heat rose from the desert floor", "The desert wind carried red sand"}},
	{"library", []string{"Dust covered the library shelves", "A lamp burned late in the library"}},
	{"comet", []string{"A comet crossed the night sky", "Children watched the comet fade"}},
	{"orchard", []string{"Apples ripened in the orchard", "Bees hummed through the orchard rows"}},
	{"glacier", []string{"The glacier groaned in the cold", "Blue ice cracked along the glacier"}},
	{"carnival", []string{"Music spilled out of the carnival", "The carnival lights blinked red and gold"}},
}

// StoryCase is a story made of two topics, one scene each, plus a unique marker word.
type StoryCase struct {
	ID      string
	Title   string
	Marker  string
	Topics  [2]int
	Content string
}

// Corpus holds stories and the scenes each is expected to split into.
type Corpus struct {
	Stories      []StoryCase
	TotalStories int
}

// BuildCorpus returns n stories. Story i covers topics i and i+3 (mod len(Topics)) and its first
// sentence carries the marker word "chapter<i>".
func BuildCorpus(n int) *Corpus {
	stories := make([]StoryCase, n)
	for i := range stories {
		a, b := i%len(Topics), (i+3)%len(Topics)
		marker := fmt.Sprintf("chapter%d", i)
		sentences := []string{Topics[a].Sentences[0] + " in " + marker}
		sentences = append(sentences, Topics[a].Sentences[1:]...)
		sentences = append(sentences, Topics[b].Sentences...)
		stories[i] = StoryCase{
			ID:      fmt.Sprintf("story-%03d", i),
			Title:   fmt.Sprintf("%s and %s", Topics[a].Word, Topics[b].Word),
			Marker:  marker,
			Topics:  [2]int{a, b},
			Content: strings.Join(sentences, ". ") + ".",
		}
	}
	return &Corpus{Stories: stories, TotalStories: n}
}

// Inputs returns the stories as pipeline inputs.
func (c *Corpus) Inputs() []*models.StoryInput {
	out := make([]*models.StoryInput, len(c.Stories))
	for i, s := range c.Stories {
		out[i] = &models.StoryInput{ID: s.ID, Title: s.Title, Content: s.Content}
	}
	return out
}

// StoriesWithTopic returns the ids of stories that cover topic t.
func (c *Corpus) StoriesWithTopic(t int) []string {
	var ids []string
	for _, s := range c.Stories {
		if s.Topics[0] == t || s.Topics[1] == t {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// TopicEmbedder embeds text as a bag of topic words, so sentences of one topic have cosine 1 and
// sentences of different topics have cosine 0.
type TopicEmbedder struct{}

// Embed implements scene.Embedder.
func (TopicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, len(Topics))
	lower := strings.ToLower(text)
	found := false
	for i, t := range Topics {
		if strings.Contains(lower, t.Word) {
			v[i] = 1
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no topic word in %q", text)
	}
	return v, nil
}
