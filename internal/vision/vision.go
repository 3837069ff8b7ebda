// Package vision is a client for the face-detection inference service
// (Yandex Vision batchAnalyze).
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-index/internal/faces"
)

// DefaultURL is the batchAnalyze endpoint.
const DefaultURL = "https://vision.api.cloud.yandex.net/vision/v1/batchAnalyze"

const featureFaceDetection = "FACE_DETECTION"

// Credential is a short-lived token for the detection service.
type Credential struct {
	AccessToken string
	TokenType   string
}

// Valid reports whether the credential carries a token.
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}

// Header renders the Authorization header value.
func (c Credential) Header() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// ParseAuthorization splits an Authorization header of the form
// "<type> <token>". A bare token is treated as a Bearer token.
func ParseAuthorization(header string) (Credential, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Credential{}, false
	}
	tokenType, token, found := strings.Cut(header, " ")
	if !found {
		return Credential{AccessToken: tokenType, TokenType: "Bearer"}, true
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Credential{}, false
	}
	return Credential{AccessToken: token, TokenType: tokenType}, true
}

// Client calls the detection service.
type Client struct {
	url        string
	folderID   string
	httpClient *http.Client
}

// NewClient creates a client. An empty url selects DefaultURL.
func NewClient(url, folderID string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		folderID:   folderID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	FolderID     string        `json:"folderId"`
	AnalyzeSpecs []analyzeSpec `json:"analyze_specs"`
}

type analyzeSpec struct {
	Content  string    `json:"content"`
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"type"`
}

type analyzeResponse struct {
	Results []struct {
		Results []struct {
			FaceDetection *struct {
				Faces []struct {
					BoundingBox struct {
						Vertices faces.BoundingBox `json:"vertices"`
					} `json:"boundingBox"`
				} `json:"faces"`
			} `json:"faceDetection"`
		} `json:"results"`
	} `json:"results"`
}

// Detect returns one bounding box per face found in image. Every failure,
// including an unexpected response shape, is wrapped in faces.ErrDetection.
func (c *Client) Detect(ctx context.Context, image []byte, cred Credential) ([]faces.BoundingBox, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("%w: missing credential", faces.ErrDetection)
	}

	body := analyzeRequest{
		FolderID: c.folderID,
		AnalyzeSpecs: []analyzeSpec{{
			Content:  base64.StdEncoding.EncodeToString(image),
			Features: []feature{{Type: featureFaceDetection}},
		}},
	}

	resp, err := doPostJSON[analyzeResponse](ctx, c.httpClient, c.url, cred.Header(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faces.ErrDetection, err)
	}

	boxes, err := resp.boxes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faces.ErrDetection, err)
	}
	return boxes, nil
}

var errResponseShape = errors.New("unexpected response shape")

func (r *analyzeResponse) boxes() ([]faces.BoundingBox, error) {
	if len(r.Results) == 0 || len(r.Results[0].Results) == 0 {
		return nil, errResponseShape
	}
	detection := r.Results[0].Results[0].FaceDetection
	if detection == nil {
		return nil, errResponseShape
	}
	// An image without faces comes back with an empty faceDetection object.
	boxes := make([]faces.BoundingBox, 0, len(detection.Faces))
	for _, f := range detection.Faces {
		boxes = append(boxes, f.BoundingBox.Vertices)
	}
	return boxes, nil
}

