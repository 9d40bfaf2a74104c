package download

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// GhidraReleaseAPI is the latest-release endpoint for official Ghidra builds
	GhidraReleaseAPI = "https://api.github.com/repos/NationalSecurityAgency/ghidra/releases/latest"
	// GraalReleaseAPI is the latest-release endpoint for GraalVM CE builds
	GraalReleaseAPI = "https://api.github.com/repos/graalvm/graalvm-ce-builds/releases/latest"
)

// GithubReleaseAsset is a downloadable file attached to a Github release
type GithubReleaseAsset struct {
	ID            int       `json:"id,omitempty"`
	Name          string    `json:"name,omitempty"`
	URL           string    `json:"url,omitempty"`
	DownloadURL   string    `json:"browser_download_url,omitempty"`
	Size          int       `json:"size,omitempty"`
	DownloadCount int       `json:"download_count,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

func (a GithubReleaseAsset) String() string {
	return a.Name
}

// GithubRelease is a single Github release with its assets
type GithubRelease struct {
	ID          int                  `json:"id,omitempty"`
	URL         string               `json:"url,omitempty"`
	HtmlURL     string               `json:"html_url,omitempty"`
	Tag         string               `json:"tag_name,omitempty"`
	CreatedAt   time.Time            `json:"created_at,omitempty"`
	PublishedAt time.Time            `json:"published_at,omitempty"`
	Assets      []GithubReleaseAsset `json:"assets,omitempty"`
	Body        string               `json:"body,omitempty"`
}

// Asset returns the first release asset whose name contains all the given
// filters, or the first asset when no filters are supplied.
func (r *GithubRelease) Asset(filters ...string) (*GithubReleaseAsset, error) {
	if len(r.Assets) == 0 {
		return nil, fmt.Errorf("release %s has no assets", r.Tag)
	}
	if len(filters) == 0 {
		return &r.Assets[0], nil
	}
	for idx, asset := range r.Assets {
		matched := true
		for _, filter := range filters {
			if !strings.Contains(asset.Name, filter) {
				matched = false
				break
			}
		}
		if matched {
			return &r.Assets[idx], nil
		}
	}
	return nil, fmt.Errorf("release %s has no asset matching %v", r.Tag, filters)
}

// GetLatestRelease queries a Github latest-release API URL
func GetLatestRelease(apiURL, proxy string, insecure bool, api string) (*GithubRelease, error) {
	var release GithubRelease

	req, err := http.NewRequest("GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create http request: %v", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if len(api) > 0 {
		req.Header.Add("Authorization", "token "+api)
	}

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:           GetProxy(proxy),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("failed to connect to URL %s: %s", apiURL, resp.Status)
	}

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read github api JSON: %v", err)
	}

	if err := json.Unmarshal(document, &release); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the github api JSON: %v", err)
	}

	return &release, nil
}
