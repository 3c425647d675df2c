package coverage

import (
	"testing"
	"time"

	"vatwatch/internal/store"
	"vatwatch/internal/vatsim"
)

func flightSample(t time.Time, freq int64, lat, lon float64) store.TransceiverSample {
	return store.TransceiverSample{
		Callsign: "QFA123", Timestamp: t, FrequencyHz: freq,
		Latitude: lat, Longitude: lon, EntityType: store.EntityFlight,
	}
}

func atcSample(cs string, t time.Time, freq int64, lat, lon float64) store.TransceiverSample {
	return store.TransceiverSample{
		Callsign: cs, Timestamp: t, FrequencyHz: freq,
		Latitude: lat, Longitude: lon, EntityType: store.EntityATC,
	}
}

func TestComputeSeventyPercent(t *testing.T) {
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	const freq = 124400000

	var flight, atc []store.TransceiverSample
	for i := 0; i < 100; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		flight = append(flight, flightSample(ts, freq, -33.0, 151.0))
		if i < 70 {
			atc = append(atc, atcSample("BN-TSN_CTR", ts.Add(30*time.Second), freq, -32.0, 150.0))
		}
	}

	res := Compute(flight, atc, nil, DefaultOptions())
	if res.TotalSamples != 100 {
		t.Fatalf("total = %d, want 100", res.TotalSamples)
	}
	if res.CoveredSamples != 70 {
		t.Fatalf("covered = %d, want 70", res.CoveredSamples)
	}
	if res.Percentage != 70 {
		t.Errorf("percentage = %d, want 70", res.Percentage)
	}
	if len(res.ControllerCallsigns) != 1 || res.ControllerCallsigns[0] != "BN-TSN_CTR" {
		t.Errorf("callsigns = %v, want [BN-TSN_CTR]", res.ControllerCallsigns)
	}
	if res.ByClass[ClassCTR] != 1 {
		t.Errorf("CTR class count = %d, want 1", res.ByClass[ClassCTR])
	}
}

func TestComputeRejectsOnFrequency(t *testing.T) {
	base := time.Now().UTC()
	flight := []store.TransceiverSample{flightSample(base, 124400000, -33, 151)}
	atc := []store.TransceiverSample{atcSample("SY_APP", base, 118700000, -33, 151)}

	res := Compute(flight, atc, nil, DefaultOptions())
	if res.CoveredSamples != 0 {
		t.Error("different frequency must not cover")
	}
}

func TestComputeRejectsOnTime(t *testing.T) {
	base := time.Now().UTC()
	flight := []store.TransceiverSample{flightSample(base, 124400000, -33, 151)}
	atc := []store.TransceiverSample{atcSample("SY_APP", base.Add(181*time.Second), 124400000, -33, 151)}

	res := Compute(flight, atc, nil, DefaultOptions())
	if res.CoveredSamples != 0 {
		t.Error("sample 181s away must not cover")
	}
}

func TestComputeRejectsOnDistance(t *testing.T) {
	base := time.Now().UTC()
	flight := []store.TransceiverSample{flightSample(base, 124400000, 0, 0)}
	// 301 degree-units away on the longitude axis (the correlator works
	// in coordinate units, not nautical miles).
	atc := []store.TransceiverSample{atcSample("SY_APP", base, 124400000, 0, 301)}

	res := Compute(flight, atc, nil, DefaultOptions())
	if res.CoveredSamples != 0 {
		t.Error("sample beyond distance threshold must not cover")
	}
}

func TestComputeExcludesObservers(t *testing.T) {
	base := time.Now().UTC()
	flight := []store.TransceiverSample{flightSample(base, 124400000, -33, 151)}
	atc := []store.TransceiverSample{atcSample("OBS_WATCHER", base, 124400000, -33, 151)}
	facilities := map[string]int{"OBS_WATCHER": vatsim.FacilityObserver}

	res := Compute(flight, atc, facilities, DefaultOptions())
	if res.CoveredSamples != 0 {
		t.Error("observer must not provide coverage")
	}
}

func TestComputeEmpty(t *testing.T) {
	res := Compute(nil, nil, nil, DefaultOptions())
	if res.Percentage != 0 || res.TotalSamples != 0 {
		t.Errorf("empty input result = %+v", res)
	}
}

func TestPercentageHalfEven(t *testing.T) {
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	const freq = 124400000

	// 1 of 200 covered = 0.5%, rounds half-even to 0.
	var flight, atc []store.TransceiverSample
	for i := 0; i < 200; i++ {
		flight = append(flight, flightSample(base.Add(time.Duration(i)*time.Minute), freq, -33, 151))
	}
	atc = append(atc, atcSample("SY_TWR", base, freq, -33, 151))

	res := Compute(flight, atc, nil, DefaultOptions())
	if res.CoveredSamples != 1 {
		t.Fatalf("covered = %d, want 1", res.CoveredSamples)
	}
	if res.Percentage != 0 {
		t.Errorf("percentage = %d, want 0 (0.5 rounds half-even to 0)", res.Percentage)
	}

	// 3 of 200 = 1.5%, rounds half-even to 2.
	atc = append(atc,
		atcSample("SY_TWR", base.Add(time.Minute), freq, -33, 151),
		atcSample("SY_TWR", base.Add(2*time.Minute), freq, -33, 151))
	res = Compute(flight, atc, nil, DefaultOptions())
	if res.CoveredSamples != 3 {
		t.Fatalf("covered = %d, want 3", res.CoveredSamples)
	}
	if res.Percentage != 2 {
		t.Errorf("percentage = %d, want 2 (1.5 rounds half-even to 2)", res.Percentage)
	}
}

func TestClassifyCallsign(t *testing.T) {
	cases := []struct {
		cs   string
		want Class
	}{
		{"BN-TSN_CTR", ClassCTR},
		{"SY_APP", ClassAPP},
		{"SY_DEP", ClassAPP},
		{"SY_TWR", ClassTWR},
		{"SY_GND", ClassGND},
		{"SY_DEL", ClassDEL},
		{"AU-FWD_FSS", ClassFSS},
		{"SY_ATIS", ClassOther},
		{"NOUNDERSCORE", ClassOther},
		{"TRAILING_", ClassOther},
	}
	for _, c := range cases {
		if got := ClassifyCallsign(c.cs); got != c.want {
			t.Errorf("ClassifyCallsign(%q) = %v, want %v", c.cs, got, c.want)
		}
	}
}
