package chart

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// SeriesFromJSON decodes chart data. Two shapes are accepted:
//
//	{"cpu": [[t, v], ...], "mem": [{"time": t, "value": v}, ...]}
//	[{"name": "cpu", "points": [...]}, ...]
//
// Object keys keep their document order. Times are RFC 3339 strings or
// Unix milliseconds.
func SeriesFromJSON(data []byte) ([]Series, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("series: invalid JSON")
	}
	doc := gjson.ParseBytes(data)

	var (
		out []Series
		err error
	)
	switch {
	case doc.IsObject():
		doc.ForEach(func(key, value gjson.Result) bool {
			var s Series
			s, err = decodeSeries(key.String(), value)
			out = append(out, s)
			return err == nil
		})
	case doc.IsArray():
		for _, item := range doc.Array() {
			var s Series
			s, err = decodeSeries(item.Get("name").String(), item.Get("points"))
			if err != nil {
				break
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("series: expected an object or array, got %s", doc.Type)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeSeries(name string, points gjson.Result) (Series, error) {
	if !points.IsArray() {
		return Series{}, fmt.Errorf("series %q: points must be an array", name)
	}
	s := Series{Name: name}
	for i, p := range points.Array() {
		var tv, vv gjson.Result
		switch {
		case p.IsArray():
			tv, vv = p.Get("0"), p.Get("1")
		case p.IsObject():
			tv, vv = p.Get("time"), p.Get("value")
		default:
			return Series{}, fmt.Errorf("series %q: point %d has unexpected type %s", name, i, p.Type)
		}
		t, err := parseTime(tv)
		if err != nil {
			return Series{}, fmt.Errorf("series %q: point %d: %w", name, i, err)
		}
		if vv.Type != gjson.Number {
			return Series{}, fmt.Errorf("series %q: point %d: value must be a number", name, i)
		}
		s.Points = append(s.Points, Point{Time: t, Value: vv.Float()})
	}
	return s, nil
}

func parseTime(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q: %w", v.String(), err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("missing time")
	}
}
