package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/resilience"
)

const maxImageBytes = 10 << 20

// FetchImage loads the image referenced by an image block. ref may be a
// data URI, an absolute URL or a local path.
func (r *Retriever) FetchImage(ctx context.Context, ref string) (llm.Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return llm.Image{}, fmt.Errorf("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case IsURL(ref):
		return r.downloadImage(ctx, ref)
	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return llm.Image{}, fmt.Errorf("reading image: %w", err)
		}
		return llm.Image{Name: path.Base(ref), MIME: sniffImageType(ref, "", data), Data: data}, nil
	}
}

func (r *Retriever) downloadImage(ctx context.Context, ref string) (llm.Image, error) {
	var img llm.Image
	err := resilience.Retry(ctx, "fetch image "+ref, r.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("User-Agent", defaultUserAgent)
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &httpStatusError{code: resp.StatusCode, url: ref}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return statusErr
			}
			return resilience.Permanent(statusErr)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return err
		}
		if len(data) > maxImageBytes {
			return resilience.Permanent(fmt.Errorf("image larger than %d bytes", maxImageBytes))
		}
		img = llm.Image{
			Name: path.Base(resp.Request.URL.Path),
			MIME: sniffImageType(ref, resp.Header.Get("Content-Type"), data),
			Data: data,
		}
		return nil
	})
	if err != nil {
		return llm.Image{}, fmt.Errorf("downloading image: %w", err)
	}
	return img, nil
}

func decodeDataURI(ref string) (llm.Image, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return llm.Image{}, fmt.Errorf("malformed data URI")
	}
	mediaType, _, _ := strings.Cut(header, ";")
	var data []byte
	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return llm.Image{}, fmt.Errorf("decoding data URI: %w", err)
		}
		data = decoded
	} else {
		data = []byte(payload)
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return llm.Image{Name: "inline", MIME: mediaType, Data: data}, nil
}

// sniffImageType prefers the declared content type, then the extension,
// then content sniffing.
func sniffImageType(ref, contentType string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt, ok := imageMIME(ref); ok {
		return mt
	}
	return http.DetectContentType(data)
}
