package catalog

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

const documentVersion = 1

// Document is the durable hierarchical store owning all catalog entries.
// It is loaded (or created) once at process start, mutated in memory, and
// flushed to disk only when dirty. The document assumes a single writer;
// concurrent mutators must serialize externally.
type Document struct {
	path string

	LibraryID string
	Version   int
	Created   time.Time
	Modified  time.Time

	mu    sync.Mutex
	nodes []*Entry
	dirty bool
}

// Load reads the catalog document at path, or creates a fresh one with a
// generated library identifier if no file exists yet.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.Info("Catalog document %s not found, creating new library", path)
		d := newDocument(path)
		d.dirty = true
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog document: %w", err)
	}

	var x xmlDoc
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, fmt.Errorf("parsing catalog document %s: %w", path, err)
	}

	d := newDocument(path)
	if x.ID != "" {
		d.LibraryID = x.ID
	}
	if x.Version > 0 {
		d.Version = x.Version
	}
	d.Created = parseStamp(x.Created, d.Created)
	d.Modified = parseStamp(x.Modified, d.Modified)

	for _, child := range x.Children {
		if err := d.addLoaded(d.Root(), child); err != nil {
			return nil, err
		}
	}

	metrics.DocumentEntries.Set(float64(len(d.nodes) - 1))
	logging.Info("Loaded catalog document %s: %d entries", path, len(d.nodes)-1)
	return d, nil
}

func newDocument(path string) *Document {
	now := time.Now()
	d := &Document{
		path:      path,
		LibraryID: uuid.NewString(),
		Version:   documentVersion,
		Created:   now,
		Modified:  now,
	}
	root := &Entry{handle: 0, parent: InvalidHandle}
	d.nodes = []*Entry{root}
	return d
}

// addLoaded recursively rebuilds the arena from a parsed document node.
func (d *Document) addLoaded(parent Handle, x xmlNode) error {
	kind, err := KindFromTag(x.XMLName.Local)
	if err != nil {
		return err
	}
	flags, err := ParseFlags(x.Flags)
	if err != nil {
		return fmt.Errorf("entry %q: %w", x.Name, err)
	}

	e := &Entry{
		Kind:         kind,
		Name:         x.Name,
		Flags:        flags,
		Serial:       x.Serial,
		ID:           x.ID,
		Size:         x.Size,
		DateCreated:  parseStamp(x.Created, time.Time{}),
		DateModified: parseStamp(x.Modified, time.Time{}),
		ContentType:  x.ContentType,
		Duration:     x.Duration,
		Width:        x.Width,
		Height:       x.Height,
		DateTaken:    parseStamp(x.Taken, time.Time{}),
	}
	h := d.append(parent, e)

	for _, child := range x.Children {
		if err := d.addLoaded(h, child); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the handle of the synthetic root whose children are the
// drive and server entries.
func (d *Document) Root() Handle {
	return 0
}

// Entry resolves a handle to its entry. Invalid handles return nil.
func (d *Document) Entry(h Handle) *Entry {
	if h < 0 || int(h) >= len(d.nodes) {
		return nil
	}
	return d.nodes[h]
}

// Len returns the number of entries, excluding the synthetic root.
func (d *Document) Len() int {
	return len(d.nodes) - 1
}

// append adds e under parent and returns the new handle.
func (d *Document) append(parent Handle, e *Entry) Handle {
	h := Handle(len(d.nodes))
	e.handle = h
	e.parent = parent
	d.nodes = append(d.nodes, e)
	p := d.nodes[parent]
	p.children = append(p.children, h)
	metrics.DocumentEntries.Set(float64(len(d.nodes) - 1))
	return h
}

// findChild looks up a same-kind, same-name child of parent. Name comparison
// is case-insensitive.
func (d *Document) findChild(parent Handle, kind EntryKind, name string) *Entry {
	p := d.Entry(parent)
	if p == nil {
		return nil
	}
	for _, ch := range p.children {
		c := d.nodes[ch]
		if c.Kind == kind && strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// MarkDirty records that the document diverged from its on-disk form.
func (d *Document) MarkDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// Dirty reports whether the document has unflushed changes.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// FullPath recomputes the filesystem path of the entry at h by walking its
// ancestor chain. Paths are never stored; the walk is the single source of
// truth for the path/tree bijection.
func (d *Document) FullPath(h Handle) string {
	var chain []*Entry
	for e := d.Entry(h); e != nil && e.parent != InvalidHandle; e = d.Entry(e.parent) {
		chain = append(chain, e)
	}

	var b strings.Builder
	for i := len(chain) - 1; i >= 0; i-- {
		joinSegment(&b, chain[i].Kind, chain[i].Name)
	}
	return b.String()
}

// Flush writes the document to disk if it is dirty. The write is atomic:
// a temp file in the same directory is renamed over the target. A clean
// document is a no-op.
func (d *Document) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dirty {
		return nil
	}

	d.Modified = time.Now()
	raw, err := xml.MarshalIndent(d.toXML(), "", "  ")
	if err != nil {
		metrics.DocumentFlushTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encoding catalog document: %w", err)
	}
	raw = append([]byte(xml.Header), raw...)

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.xml")
	if err != nil {
		metrics.DocumentFlushTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("creating temp catalog file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		metrics.DocumentFlushTotal.WithLabelValues("error").Inc()
		if werr != nil {
			return fmt.Errorf("writing catalog document: %w", werr)
		}
		return fmt.Errorf("closing catalog document: %w", cerr)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		_ = os.Remove(tmpName)
		metrics.DocumentFlushTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("replacing catalog document: %w", err)
	}

	d.dirty = false
	metrics.DocumentFlushTotal.WithLabelValues("success").Inc()
	logging.Debug("Flushed catalog document %s (%d entries)", d.path, len(d.nodes)-1)
	return nil
}

func (d *Document) toXML() xmlDoc {
	x := xmlDoc{
		ID:       d.LibraryID,
		Version:  d.Version,
		Created:  formatStamp(d.Created),
		Modified: formatStamp(d.Modified),
	}
	root := d.nodes[0]
	for _, ch := range root.children {
		x.Children = append(x.Children, d.nodeToXML(d.nodes[ch]))
	}
	return x
}

func (d *Document) nodeToXML(e *Entry) xmlNode {
	x := xmlNode{
		XMLName:     xml.Name{Local: e.Kind.Tag()},
		Name:        e.Name,
		Flags:       flagsAttr(e.Flags),
		Serial:      e.Serial,
		ID:          e.ID,
		Size:        e.Size,
		Created:     formatStamp(e.DateCreated),
		Modified:    formatStamp(e.DateModified),
		ContentType: e.ContentType,
		Duration:    e.Duration,
		Width:       e.Width,
		Height:      e.Height,
		Taken:       formatStamp(e.DateTaken),
	}
	for _, ch := range e.children {
		x.Children = append(x.Children, d.nodeToXML(d.nodes[ch]))
	}
	return x
}

// flagsAttr encodes flags, omitting the attribute entirely when zero.
func flagsAttr(f Flags) string {
	if f == 0 {
		return ""
	}
	return f.String()
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseStamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		logging.Warn("Invalid timestamp %q in catalog document: %v", s, err)
		return fallback
	}
	return t
}

// xmlDoc is the on-disk root element.
type xmlDoc struct {
	XMLName  xml.Name  `xml:"catalog"`
	ID       string    `xml:"id,attr"`
	Version  int       `xml:"version,attr"`
	Created  string    `xml:"created,attr,omitempty"`
	Modified string    `xml:"modified,attr,omitempty"`
	Children []xmlNode `xml:",any"`
}

// xmlNode is one on-disk entry; the element tag carries the entry kind.
type xmlNode struct {
	XMLName     xml.Name
	Name        string    `xml:"name,attr"`
	Flags       string    `xml:"flags,attr,omitempty"`
	Serial      string    `xml:"serial,attr,omitempty"`
	ID          string    `xml:"id,attr,omitempty"`
	Size        int64     `xml:"size,attr,omitempty"`
	Created     string    `xml:"created,attr,omitempty"`
	Modified    string    `xml:"modified,attr,omitempty"`
	ContentType string    `xml:"contentType,attr,omitempty"`
	Duration    float64   `xml:"duration,attr,omitempty"`
	Width       int       `xml:"width,attr,omitempty"`
	Height      int       `xml:"height,attr,omitempty"`
	Taken       string    `xml:"taken,attr,omitempty"`
	Children    []xmlNode `xml:",any"`
}
