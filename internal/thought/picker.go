package thought

// typeAffinity boosts thought types that fit the dominant emotion. Every
// type keeps a base weight of 1 so none is ever impossible.
var typeAffinity = map[string]map[Type]float64{
	"lonely": {
		TypeConnection: 3,
		TypeMemory:     2,
		TypeFeeling:    1,
	},
	"melancholic": {
		TypeMemory:  3,
		TypeFeeling: 2,
		TypeDream:   1,
	},
	"bittersweet": {
		TypeFeeling: 3,
		TypeMemory:  2,
		TypeDream:   1,
	},
	"joyful": {
		TypeObservation: 3,
		TypeConnection:  2,
		TypeMusing:      1,
	},
	"curious": {
		TypeQuestion:    3,
		TypeMusing:      2,
		TypeObservation: 1,
	},
	"calm": {
		TypeMusing:      2,
		TypeDream:       2,
		TypeObservation: 1,
	},
}

// TypeWeights returns the weight of every thought type for emotion.
func TypeWeights(emotion string) map[Type]float64 {
	w := make(map[Type]float64, len(AllTypes))
	for _, t := range AllTypes {
		w[t] = 1 + typeAffinity[emotion][t]
	}
	return w
}

// PickType draws a thought type weighted toward emotion. r in [0,1).
func PickType(emotion string, r float64) Type {
	weights := TypeWeights(emotion)
	var total float64
	for _, t := range AllTypes {
		total += weights[t]
	}

	target := r * total
	for _, t := range AllTypes {
		target -= weights[t]
		if target < 0 {
			return t
		}
	}
	return AllTypes[len(AllTypes)-1]
}
