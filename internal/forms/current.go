package forms

import (
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/andybalholm/cascadia"
	"github.com/hackclub/mediafield/internal/binder"
	"github.com/hackclub/mediafield/internal/dom"
	"golang.org/x/net/html"
)

const CurrentFileLinkClass = "current-file-link"

var (
	containerSel = cascadia.MustCompile(binder.ContainerSelector)
	previewSel   = cascadia.MustCompile(binder.PreviewSelector)
)

var ErrInvalidCurrentFile = errors.New("invalid current file")

// CurrentFile is the hosted file a field already holds. It is drawn into
// .current-file when the form is mounted, so an edit form opens showing
// the existing image.
type CurrentFile struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

type createOptions struct {
	current *CurrentFile
}

type CreateOption func(*createOptions)

// WithCurrentFile mounts the form with an existing value. name defaults to
// the last path segment of the URL.
func WithCurrentFile(url, name string) CreateOption {
	return func(o *createOptions) {
		o.current = &CurrentFile{URL: url, Name: name}
	}
}

func renderCurrentFile(doc *dom.Document, cf CurrentFile) error {
	u, err := url.Parse(cf.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCurrentFile, cf.URL)
	}

	container := doc.First(containerSel)
	if container == nil {
		return fmt.Errorf("%w: %s", binder.ErrMissingElement, binder.ContainerSelector)
	}

	name := cf.Name
	if name == "" {
		name = path.Base(u.Path)
		if name == "/" || name == "." {
			name = cf.URL
		}
	}

	link := doc.CreateElement("a")
	dom.SetAttr(link, "href", cf.URL)
	dom.SetAttr(link, "target", "_blank")
	dom.AddClass(link, CurrentFileLinkClass)
	link.AppendChild(&html.Node{Type: html.TextNode, Data: name})
	container.AppendChild(link)

	if preview := doc.First(previewSel); preview != nil {
		dom.SetAttr(preview, "src", cf.URL)
		return nil
	}
	img := doc.CreateElement("img")
	dom.AddClass(img, binder.PreviewClass)
	dom.SetAttr(img, "src", cf.URL)
	container.AppendChild(img)
	return nil
}
