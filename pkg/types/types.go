package types

import "sort"

// NormalizedBox is a YOLO bounding box: center point and size, all relative to the
// image dimensions and expected in [0,1].
type NormalizedBox struct {
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// CornerBox is a Pascal-VOC bounding box in pixel units.
type CornerBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Valid reports whether the box has a positive area. Degenerate boxes must be
// discarded by callers.
func (b CornerBox) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Width returns the horizontal extent of the box in pixels
func (b CornerBox) Width() float64 { return b.XMax - b.XMin }

// Height returns the vertical extent of the box in pixels
func (b CornerBox) Height() float64 { return b.YMax - b.YMin }

// Annotation is one line of a YOLO label file
type Annotation struct {
	ClassID int           `json:"class_id"`
	Box     NormalizedBox `json:"box"`
}

// LabelRecord holds every annotation of one label file, in file order
type LabelRecord struct {
	Base        string       `json:"base"`
	Annotations []Annotation `json:"annotations"`
}

// ClassIDs returns the distinct class ids referenced by the record, sorted
func (r LabelRecord) ClassIDs() []int {
	seen := make(map[int]bool, len(r.Annotations))
	var ids []int
	for _, a := range r.Annotations {
		if !seen[a.ClassID] {
			seen[a.ClassID] = true
			ids = append(ids, a.ClassID)
		}
	}
	sort.Ints(ids)
	return ids
}

// SingleClass returns the class id shared by all annotations. ok is false for empty
// records and for records mixing several classes.
func (r LabelRecord) SingleClass() (classID int, ok bool) {
	ids := r.ClassIDs()
	if len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}

// Contains reports whether any annotation belongs to classID
func (r LabelRecord) Contains(classID int) bool {
	for _, a := range r.Annotations {
		if a.ClassID == classID {
			return true
		}
	}
	return false
}

// Boxes returns the boxes annotated with classID, in file order
func (r LabelRecord) Boxes(classID int) []NormalizedBox {
	var boxes []NormalizedBox
	for _, a := range r.Annotations {
		if a.ClassID == classID {
			boxes = append(boxes, a.Box)
		}
	}
	return boxes
}

// DatasetEntry pairs an image file and a label file sharing the same base filename
type DatasetEntry struct {
	Base      string `json:"base"`
	ImagePath string `json:"image_path"`
	LabelPath string `json:"label_path"`
	HasImage  bool   `json:"has_image"`
	HasLabel  bool   `json:"has_label"`
}

// Valid reports whether both sides of the pair exist on disk
func (e DatasetEntry) Valid() bool {
	return e.HasImage && e.HasLabel
}

// ClassQuota is the current and desired number of samples for a class
type ClassQuota struct {
	ClassID int `json:"class_id"`
	Current int `json:"current"`
	Target  int `json:"target"`
}

// Deficit is the number of samples still missing to reach Target, never negative
func (q ClassQuota) Deficit() int {
	if q.Target > q.Current {
		return q.Target - q.Current
	}
	return 0
}

// PlanEntry lists the eligible source images of a class and how many synthetic
// samples the class still needs.
type PlanEntry struct {
	ClassID int      `json:"class_id"`
	Bases   []string `json:"bases"`
	Deficit int      `json:"deficit"`
}

// SyntheticSample is an augmented image and label pair produced from a source entry.
// Once written it is never modified.
type SyntheticSample struct {
	Base      string      `json:"base"`
	Source    string      `json:"source"`
	ClassID   int         `json:"class_id"`
	Sequence  int         `json:"sequence"`
	ImagePath string      `json:"image_path"`
	LabelPath string      `json:"label_path"`
	Record    LabelRecord `json:"record"`
}

// MismatchKind tells which side of an image/label pair is missing
type MismatchKind int

const (
	// MissingLabel marks an image without a label file
	MissingLabel MismatchKind = iota
	// MissingImage marks a label file without an image
	MissingImage
)

func (k MismatchKind) String() string {
	switch k {
	case MissingLabel:
		return "missing label"
	case MissingImage:
		return "missing image"
	}
	return "unknown"
}

// Mismatch is an orphan file found by the integrity check
type Mismatch struct {
	Base string       `json:"base"`
	Kind MismatchKind `json:"kind"`
	Path string       `json:"path"`
}
