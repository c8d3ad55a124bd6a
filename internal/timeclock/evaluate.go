package timeclock

import (
	"ponto.dev/internal/face"
	"ponto.dev/internal/geo"
)

// Evaluation is the outcome of validating a punch capture. Both checks are
// independent; neither can fail the request, they only degrade the status.
type Evaluation struct {
	FaceMatched    bool
	FaceMatchScore float64
	GPSValid       bool
	Status         PunchStatus
}

// Evaluate runs the face match and GPS plausibility checks and derives the
// punch status: ok iff both pass, pending otherwise. A user with no stored
// embedding can never match (storedEmbedding empty), which is a degradation,
// not an error.
func Evaluate(image, storedEmbedding []byte, lat, lon, accuracy *float64) Evaluation {
	ev := Evaluation{
		GPSValid: geo.IsValid(lat, lon, accuracy),
		Status:   PunchPending,
	}
	if len(storedEmbedding) > 0 {
		ev.FaceMatched, ev.FaceMatchScore = face.Match(image, storedEmbedding)
	}
	if ev.FaceMatched && ev.GPSValid {
		ev.Status = PunchOK
	}
	return ev
}
