package sizing

// Factor is one conditional multiplier in the risk chain
type Factor struct {
	Name    string  `json:"name"`
	Applies bool    `json:"applies"`
	Value   float64 `json:"value"`
}

// Fold multiplies base by every applicable factor. Factors are plain scalars so order is irrelevant.
func Fold(base float64, factors []Factor) float64 {
	out := base
	for _, f := range factors {
		if f.Applies {
			out *= f.Value
		}
	}
	return out
}

// Product is the combined multiplier of the applicable factors
func Product(factors []Factor) float64 {
	return Fold(1.0, factors)
}
