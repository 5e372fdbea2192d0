package timing

import (
	"math"
	"sort"
)

type ClassificationLine struct {
	Position int    `json:"position"`
	Driver   Driver `json:"driver"`
	Laps     []Lap  `json:"laps"`
	NumLaps  int    `json:"num_laps"`

	// BestLap and LastLap are nil until the driver has completed a lap.
	BestLap *Lap `json:"best_lap"`
	LastLap *Lap `json:"last_lap"`

	GapToLeader int `json:"gap_to_leader"`
}

func (cl *ClassificationLine) lastElapsed() int64 {
	if cl.LastLap == nil {
		return math.MaxInt64
	}

	return cl.LastLap.AbsoluteMS
}

// Classify ranks the active drivers by laps completed, most first, then by
// the elapsed race time at which they completed their last lap. Drivers
// without laps rank behind everyone with laps. Ties keep the order of drivers.
func Classify(drivers []Driver, laps []Lap) []*ClassificationLine {
	byDriver := make(map[string][]Lap)

	for _, lap := range laps {
		byDriver[lap.DriverID] = append(byDriver[lap.DriverID], lap)
	}

	classification := make([]*ClassificationLine, 0, len(drivers))

	for _, driver := range drivers {
		if !driver.Active {
			continue
		}

		driverLaps := byDriver[driver.ID]

		sort.SliceStable(driverLaps, func(i, j int) bool {
			return driverLaps[i].LapIndex < driverLaps[j].LapIndex
		})

		line := &ClassificationLine{
			Driver:  driver,
			Laps:    driverLaps,
			NumLaps: len(driverLaps),
		}

		for i := range driverLaps {
			lap := driverLaps[i]

			if line.BestLap == nil || lap.LapMS < line.BestLap.LapMS {
				line.BestLap = &lap
			}
		}

		if len(driverLaps) > 0 {
			last := driverLaps[len(driverLaps)-1]
			line.LastLap = &last
		}

		classification = append(classification, line)
	}

	sort.SliceStable(classification, func(i, j int) bool {
		lineI, lineJ := classification[i], classification[j]

		if lineI.NumLaps != lineJ.NumLaps {
			return lineI.NumLaps > lineJ.NumLaps
		}

		return lineI.lastElapsed() < lineJ.lastElapsed()
	})

	// correct positions
	for pos, line := range classification {
		line.Position = pos + 1
		line.GapToLeader = classification[0].NumLaps - line.NumLaps
	}

	return classification
}
