package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// localMovieTitles is the offline pool used whenever the remote title API is
// unavailable or returns garbage. Picks avoid repeats within a room until the
// pool is exhausted.
var localMovieTitles = []string{
	"Baahubali", "Magadheera", "Eega", "RRR", "Pushpa",
	"Arjun Reddy", "Pokiri", "Athadu", "Srimanthudu", "Rangasthalam",
	"Ala Vaikunthapurramuloo", "Jersey", "Mahanati", "Fidaa", "Bommarillu",
	"Happy Days", "Gabbar Singh", "Attarintiki Daredi", "Race Gurram", "Temper",
	"Legend", "Mirchi", "Julayi", "Dookudu", "Businessman",
	"Khaleja", "Jalsa", "Kick", "Billa", "Sye",
	"Okkadu", "Indra", "Simhadri", "Chatrapathi", "Vikramarkudu",
	"Maryada Ramanna", "Manam", "Oopiri", "Oh Baby", "Geetha Govindam",
	"Dear Comrade", "Uppena", "Love Story", "Shyam Singha Roy", "Major",
	"Karthikeya", "Goodachari", "Evaru", "Agent Sai Srinivasa Athreya",
	"Brochevarevarura", "Jathi Ratnalu", "Middle Class Melodies",
	"Colour Photo", "Awe", "Kshanam", "Pelli Choopulu", "Ee Nagaraniki Emaindi",
}

const (
	movieSourceAPI      = "api"
	movieSourceFallback = "fallback"
)

type movieSource struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

func newMovieSource(url string, timeout time.Duration) *movieSource {
	return &movieSource{
		client:  &http.Client{},
		url:     url,
		timeout: timeout,
	}
}

// Pick resolves the next secret title, preferring the remote API within the
// configured timeout and falling back to the local pool. used holds the room's
// previous fallback picks; the caller records the returned title afterwards.
func (m *movieSource) Pick(ctx context.Context, roomCode string, used map[string]struct{}) (string, string) {
	if m.url != "" {
		if title, err := m.fetchRemote(ctx); err != nil {
			log.Printf("[movie] source=api error room=%s message=%q", roomCode, err.Error())
		} else if title != "" {
			log.Printf("[movie] source=api room=%s title=%q", roomCode, title)
			return title, movieSourceAPI
		}
	}
	title := pickLocalMovie(used)
	log.Printf("[movie] source=fallback room=%s title=%q", roomCode, title)
	return title, movieSourceFallback
}

func (m *movieSource) fetchRemote(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		return extractMovieTitle(body), nil
	}
	return cleanMovieTitle(string(body)), nil
}

// extractMovieTitle pulls a usable title out of a JSON payload: either a bare
// string or an object carrying movie, title, or name.
func extractMovieTitle(body []byte) string {
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return cleanMovieTitle(asString)
	}
	var asObject struct {
		Movie string `json:"movie"`
		Title string `json:"title"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &asObject); err != nil {
		return ""
	}
	for _, candidate := range []string{asObject.Movie, asObject.Title, asObject.Name} {
		if cleaned := cleanMovieTitle(candidate); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

func pickLocalMovie(used map[string]struct{}) string {
	available := make([]string, 0, len(localMovieTitles))
	for _, title := range localMovieTitles {
		if _, taken := used[title]; !taken {
			available = append(available, title)
		}
	}
	if len(available) == 0 {
		available = localMovieTitles
	}
	return available[rand.Intn(len(available))]
}
