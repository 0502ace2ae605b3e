package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/form"
)

const (
	// DateField is the server-side timestamp attached to every stored message
	DateField = "date"

	// DateLayout formats DateField, second precision in server local time
	DateLayout = "2006-01-02 15:04:05"
)

// Document is one stored message: the submitted fields plus the insert time
type Document struct {
	Fields form.Fields
	Date   string
}

// NewDocument collapses repeated keys (last value wins) and stamps the date
func NewDocument(fields form.Fields, now time.Time) Document {
	return Document{
		Fields: fields.Dedup(),
		Date:   now.Format(DateLayout),
	}
}

// BSON renders the document in field order. A submitted "date" key keeps
// its position but takes the server timestamp.
func (d Document) BSON() bson.D {
	doc := make(bson.D, 0, len(d.Fields)+1)
	dated := false

	for _, field := range d.Fields {
		if field.Key == DateField {
			doc = append(doc, bson.E{Key: DateField, Value: d.Date})
			dated = true
			continue
		}
		doc = append(doc, bson.E{Key: field.Key, Value: field.Value})
	}

	if !dated {
		doc = append(doc, bson.E{Key: DateField, Value: d.Date})
	}

	return doc
}

// Map returns the stored fields as a mapping, date included
func (d Document) Map() map[string]string {
	m := d.Fields.Map()
	m[DateField] = d.Date
	return m
}
