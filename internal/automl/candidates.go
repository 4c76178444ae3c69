package automl

// ClassificationCandidates are the algorithms compared for classification
// targets, in leaderboard tie-break order.
func ClassificationCandidates() []Candidate {
	return []Candidate{
		{
			ID: "lr", Name: "Logistic Regression",
			Defaults: Params{"C": 1, "max_iter": 200},
			Grid:     Grid{"C": {0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}, "max_iter": {100, 200, 500}},
			New: func(p Params, k int, _ int64) Estimator {
				return NewLogisticRegression(p.Get("C", 1), int(p.Get("max_iter", 200)), k)
			},
		},
		{
			ID: "knn", Name: "K Neighbors Classifier",
			Defaults: Params{"k": 5, "weighted": 0},
			Grid:     Grid{"k": {1, 3, 5, 7, 9, 11, 15, 21}, "weighted": {0, 1}},
			New: func(p Params, k int, _ int64) Estimator {
				return NewKNN(int(p.Get("k", 5)), p.Get("weighted", 0) > 0, k)
			},
		},
		{
			ID: "nb", Name: "Naive Bayes",
			Defaults: Params{"var_smoothing": 1e-9},
			Grid:     Grid{"var_smoothing": {1e-9, 1e-8, 1e-7, 1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1, 1}},
			New: func(p Params, k int, _ int64) Estimator {
				return NewGaussianNB(p.Get("var_smoothing", 1e-9), k)
			},
		},
		{
			ID: "dt", Name: "Decision Tree Classifier",
			Defaults: Params{"max_depth": 0, "min_samples_leaf": 1, "min_samples_split": 2},
			Grid:     treeGrid(),
			New: func(p Params, k int, seed int64) Estimator {
				return NewDecisionTree(p, k, seed)
			},
		},
		{
			ID: "rf", Name: "Random Forest Classifier",
			Defaults: Params{"n_estimators": 50, "max_depth": 0, "min_samples_leaf": 1},
			Grid:     forestGrid(),
			New: func(p Params, k int, seed int64) Estimator {
				return NewRandomForest(p, k, seed)
			},
		},
		{
			ID: "dummy", Name: "Dummy Classifier",
			New: func(_ Params, k int, _ int64) Estimator { return NewDummy(k) },
		},
	}
}

// RegressionCandidates are the algorithms compared for regression targets.
func RegressionCandidates() []Candidate {
	return []Candidate{
		{
			ID: "lr", Name: "Linear Regression",
			New: func(Params, int, int64) Estimator { return NewLinearRegression() },
		},
		{
			ID: "ridge", Name: "Ridge Regression",
			Defaults: Params{"alpha": 1},
			Grid:     Grid{"alpha": {0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 50, 100}},
			New: func(p Params, _ int, _ int64) Estimator {
				return NewRidge(p.Get("alpha", 1))
			},
		},
		{
			ID: "knn", Name: "K Neighbors Regressor",
			Defaults: Params{"k": 5, "weighted": 0},
			Grid:     Grid{"k": {1, 3, 5, 7, 9, 11, 15, 21}, "weighted": {0, 1}},
			New: func(p Params, _ int, _ int64) Estimator {
				return NewKNN(int(p.Get("k", 5)), p.Get("weighted", 0) > 0, 0)
			},
		},
		{
			ID: "dt", Name: "Decision Tree Regressor",
			Defaults: Params{"max_depth": 0, "min_samples_leaf": 1, "min_samples_split": 2},
			Grid:     treeGrid(),
			New: func(p Params, _ int, seed int64) Estimator {
				return NewDecisionTree(p, 0, seed)
			},
		},
		{
			ID: "rf", Name: "Random Forest Regressor",
			Defaults: Params{"n_estimators": 50, "max_depth": 0, "min_samples_leaf": 1},
			Grid:     forestGrid(),
			New: func(p Params, _ int, seed int64) Estimator {
				return NewRandomForest(p, 0, seed)
			},
		},
		{
			ID: "dummy", Name: "Dummy Regressor",
			New: func(Params, int, int64) Estimator { return NewDummy(0) },
		},
	}
}

// CandidatesFor returns the candidate list of a problem type.
func CandidatesFor(pt ProblemType) []Candidate {
	if pt == Classification {
		return ClassificationCandidates()
	}
	return RegressionCandidates()
}

func treeGrid() Grid {
	return Grid{
		"max_depth":         {0, 2, 3, 4, 5, 6, 8, 10, 12, 16},
		"min_samples_leaf":  {1, 2, 3, 4, 5, 6},
		"min_samples_split": {2, 5, 7, 9, 10},
	}
}

func forestGrid() Grid {
	return Grid{
		"n_estimators":     {10, 20, 50, 100},
		"max_depth":        {0, 4, 6, 8, 10, 12},
		"min_samples_leaf": {1, 2, 3, 4, 5},
		"max_features":     {0.3, 0.5, 0.7, 1},
	}
}
