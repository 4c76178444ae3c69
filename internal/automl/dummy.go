package automl

// Dummy predicts the majority class, or the training mean for regression.
// It is the baseline every other candidate has to beat.
type Dummy struct {
	NClasses int       `json:"n_classes"`
	Value    []float64 `json:"value"`
}

func NewDummy(nClasses int) *Dummy { return &Dummy{NClasses: nClasses} }

func (d *Dummy) Kind() string { return "dummy" }

func (d *Dummy) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if d.NClasses > 0 {
		d.Value = make([]float64, d.NClasses)
		for _, v := range y {
			d.Value[int(v)]++
		}
		for i := range d.Value {
			d.Value[i] /= float64(len(y))
		}
		return nil
	}
	s := 0.0
	for _, v := range y {
		s += v
	}
	d.Value = []float64{s / float64(len(y))}
	return nil
}

func (d *Dummy) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = append([]float64(nil), d.Value...)
	}
	return out
}

func (d *Dummy) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	v := d.Value[0]
	if d.NClasses > 0 {
		v = float64(argmax(d.Value))
	}
	for i := range out {
		out[i] = v
	}
	return out
}
