// Package surface provides the rendering surface: a document of named mount
// points (containers) whose HTML content is replaced by renderers and served
// to browsers by the HTTP server.
package surface

import (
	"html/template"
	"strings"
	"sync"
	"time"
)

// Container is a mount point holding an HTML fragment.
type Container struct {
	id string

	mu        sync.RWMutex
	fragments []template.HTML
	version   uint64
	updatedAt time.Time
}

// ID returns the container identifier.
func (c *Container) ID() string {
	return c.id
}

// SetHTML replaces the container content.
func (c *Container) SetHTML(html template.HTML) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = append(c.fragments[:0], html)
	c.touch()
}

// Append adds a fragment after the current content.
func (c *Container) Append(html template.HTML) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = append(c.fragments, html)
	c.touch()
}

// Clear removes all content.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = nil
	c.touch()
}

func (c *Container) touch() {
	c.version++
	c.updatedAt = time.Now()
}

// HTML returns the current content.
func (c *Container) HTML() template.HTML {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	for _, f := range c.fragments {
		b.WriteString(string(f))
	}
	return template.HTML(b.String())
}

// Version increases on every content change. Clients poll it to detect
// updates.
func (c *Container) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// UpdatedAt returns the time of the last content change.
func (c *Container) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Resolver looks up containers by identifier.
type Resolver interface {
	Lookup(id string) (*Container, bool)
}

// Document is the set of mounted containers.
type Document struct {
	mu         sync.RWMutex
	containers map[string]*Container
	order      []string
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{containers: make(map[string]*Container)}
}

// Mount returns the container with id, creating it if needed.
func (d *Document) Mount(id string) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.containers[id]; ok {
		return c
	}
	c := &Container{id: id}
	d.containers[id] = c
	d.order = append(d.order, id)
	return c
}

// Lookup returns the container with id, if mounted.
func (d *Document) Lookup(id string) (*Container, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.containers[id]
	return c, ok
}

// Unmount removes the container with id.
func (d *Document) Unmount(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.containers[id]; !ok {
		return
	}
	delete(d.containers, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Containers returns all containers in mount order.
func (d *Document) Containers() []*Container {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Container, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.containers[id])
	}
	return out
}
