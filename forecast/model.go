package forecast

import "math"

// model предсказывает следующее значение ряда по его текущему хвосту.
type model interface {
	next(window []float64) float64
}

// baselineModel — скользящее среднее последних windowSize значений.
type baselineModel struct{}

func (baselineModel) next(window []float64) float64 {
	return meanLastN(window, windowSize)
}

// regressorModel — линейная регрессия следующего значения по четырем
// предыдущим: y = b0 + b1*w1 + b2*w2 + b3*w3 + b4*w4.
type regressorModel struct {
	coef [windowSize + 1]float64
}

func (m regressorModel) next(window []float64) float64 {
	if len(window) < windowSize {
		return meanLastN(window, windowSize)
	}
	tail := window[len(window)-windowSize:]
	value := m.coef[0]
	for i, v := range tail {
		value += m.coef[i+1] * v
	}
	return value
}

// minSeriesForRegressor — минимальная длина ряда, при которой вообще
// имеет смысл обучать регрессор.
const minSeriesForRegressor = 8

// selectModel обучает регрессор на начале ряда и сравнивает его с
// базовой моделью по средней абсолютной ошибке на отложенном хвосте
// (последние 20% ряда, но не менее двух точек). Побеждает меньшая
// ошибка, при любом сбое обучения остается базовая модель.
func selectModel(series []float64) model {
	base := baselineModel{}
	if len(series) < minSeriesForRegressor {
		return base
	}

	holdout := len(series) / 5
	if holdout < 2 {
		holdout = 2
	}
	train := series[:len(series)-holdout]

	reg, ok := fitRegressor(train)
	if !ok {
		return base
	}

	baseMAE := holdoutMAE(base, series, holdout)
	regMAE := holdoutMAE(reg, series, holdout)
	if regMAE < baseMAE {
		forecastLogger.Info("Выбран регрессор: MAE %.2f против %.2f у базовой модели", regMAE, baseMAE)
		return reg
	}
	return base
}

// holdoutMAE считает среднюю абсолютную ошибку одношаговых прогнозов
// модели на последних holdout точках ряда. Каждый прогноз строится по
// фактической, а не предсказанной истории.
func holdoutMAE(m model, series []float64, holdout int) float64 {
	start := len(series) - holdout
	sum := 0.0
	count := 0
	for i := start; i < len(series); i++ {
		pred := m.next(series[:i])
		if math.IsNaN(pred) || math.IsInf(pred, 0) {
			return math.Inf(1)
		}
		sum += math.Abs(pred - series[i])
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}

// fitRegressor обучает регрессор методом наименьших квадратов на парах
// "окно из четырех недель - следующая неделя". Возвращает false, когда
// пар мало или нормальные уравнения вырождены.
func fitRegressor(series []float64) (regressorModel, bool) {
	const params = windowSize + 1
	samples := len(series) - windowSize
	if samples < params {
		return regressorModel{}, false
	}

	// Нормальные уравнения: (X^T X) b = X^T y.
	var xtx [params][params]float64
	var xty [params]float64
	for s := 0; s < samples; s++ {
		var row [params]float64
		row[0] = 1
		copy(row[1:], series[s:s+windowSize])
		y := series[s+windowSize]
		for i := 0; i < params; i++ {
			xty[i] += row[i] * y
			for j := 0; j < params; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	coef, ok := solveLinearSystem(xtx, xty)
	if !ok {
		return regressorModel{}, false
	}
	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return regressorModel{}, false
		}
	}
	return regressorModel{coef: coef}, true
}

// pivotEpsilon — порог, ниже которого ведущий элемент считается нулем
// и система вырожденной.
const pivotEpsilon = 1e-9

// solveLinearSystem решает систему A*x = b методом Гаусса с выбором
// ведущего элемента по столбцу.
func solveLinearSystem(a [windowSize + 1][windowSize + 1]float64, b [windowSize + 1]float64) ([windowSize + 1]float64, bool) {
	const n = windowSize + 1
	var x [n]float64

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < pivotEpsilon {
			return x, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}
