package train

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Metrics is one epoch's averaged readout.
type Metrics struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Rate     float64 `json:"rate"`
}

// History accumulates per-epoch metrics over a run.
type History struct {
	Epochs []Metrics `json:"epochs"`
}

// Final returns the last epoch's metrics.
func (h *History) Final() Metrics {
	if len(h.Epochs) == 0 {
		return Metrics{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// PlotPNG renders the loss and accuracy curves.
func (h *History) PlotPNG(path string) error {
	p := plot.New()
	p.Title.Text = "reconstruction training"
	p.X.Label.Text = "epoch"

	lossPts := make(plotter.XYs, len(h.Epochs))
	accPts := make(plotter.XYs, len(h.Epochs))
	for i, m := range h.Epochs {
		lossPts[i] = plotter.XY{X: float64(m.Epoch), Y: m.Loss}
		accPts[i] = plotter.XY{X: float64(m.Epoch), Y: m.Accuracy}
	}
	lossLine, err := plotter.NewLine(lossPts)
	if err != nil {
		return err
	}
	accLine, err := plotter.NewLine(accPts)
	if err != nil {
		return err
	}
	accLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(lossLine, accLine)
	p.Legend.Add("loss", lossLine)
	p.Legend.Add("accuracy", accLine)
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
