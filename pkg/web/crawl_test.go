package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/validation"
)

func TestCrawlerFollowsScoredLinks(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article><p>County departments.</p>
		<a href="/zoning/ordinance">Zoning Ordinance</a>
		<a href="/parks">Parks and Recreation</a>
		</article></body></html>`)
	})
	mux.HandleFunc("/zoning/ordinance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article><p>Wind energy conversion
		systems shall observe a setback of 500 feet.</p></article>
		</body></html>`)
	})
	mux.HandleFunc("/parks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article><p>Pool hours and picnic
		shelter reservations.</p></article></body></html>`)
	})

	crawler := &Crawler{
		Fetcher:  &Fetcher{},
		MaxPages: 10,
		Keywords: map[string]float64{"ordinance": 2, "zoning": 1},
		// Positive floor drops the parks link entirely.
		ScoreFloor: 1,
		DocHeuristic: validation.HeuristicFunc(func(text string) bool {
			return strings.Contains(strings.ToLower(text), "wind energy")
		}),
	}

	docs, err := crawler.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text(), "setback of 500 feet")
}

func TestCrawlerMaxPages(t *testing.T) {
	var visits int
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		visits++
		fmt.Fprintf(w, `<html><body><article><p>ordinance page %d</p>
		<a href="/page%d">ordinance next</a></article></body></html>`, visits, visits)
	})

	crawler := &Crawler{
		Fetcher:  &Fetcher{},
		MaxPages: 3,
		Keywords: map[string]float64{"ordinance": 1},
	}
	_, err := crawler.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.LessOrEqual(t, visits, 3)
}

func TestCrawlerEnoughCallback(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article><p>wind ordinance text</p>
		<a href="/more">ordinance more</a></article></body></html>`)
	})

	crawler := &Crawler{
		Fetcher:  &Fetcher{},
		MaxPages: 50,
		Keywords: map[string]float64{"ordinance": 1},
		Enough:   func(docs []*Document) bool { return len(docs) >= 1 },
	}
	docs, err := crawler.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestScoreAnchorStaysOnHost(t *testing.T) {
	crawler := &Crawler{Keywords: map[string]float64{"ordinance": 1}}
	page := `<html><body>
	<a href="https://elsewhere.gov/ordinance">offsite ordinance</a>
	<a href="https://elsewhere.gov/ordinance.pdf">offsite ordinance pdf</a>
	</body></html>`

	site := mustParse(t, "https://county.gov/")
	links := crawler.scoreLinks(site, "https://county.gov/", []byte(page))
	require.Len(t, links, 1)
	assert.Equal(t, "https://elsewhere.gov/ordinance.pdf", links[0].target)
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
