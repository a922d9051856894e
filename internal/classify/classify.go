// Package classify predicts the target account for a new transaction from the
// source account and the external record's descriptor. It is a pure function
// of the accumulated training examples: retraining from the same examples
// yields the same classifier.
package classify

import (
	"errors"
	"sort"
	"strings"

	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/jbrukh/bayesian"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger sets a custom logger for this package
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// ErrNotEnoughClasses is returned by Train when the examples cover fewer than
// two distinct target accounts, which is too little to discriminate anything.
var ErrNotEnoughClasses = errors.New("training examples cover fewer than two target accounts")

// descriptorPrefix tags descriptors derived from feed descriptions. Any other
// prefix is unsupported and rejected rather than guessed at.
const descriptorPrefix = "csv-desc:"

// Example is one training observation: the feature set of a matched posting
// and the target account the operator chose for it.
type Example struct {
	Features []string
	Target   string
}

// Features derives the deterministic feature set for a record: the source
// account plus every contiguous word phrase of the normalized descriptor.
// The amount is deliberately not a feature. The descriptor must carry the
// csv-desc prefix.
func Features(account, sourceData string, amount models.Amount) ([]string, error) {
	_ = amount
	desc, ok := strings.CutPrefix(sourceData, descriptorPrefix)
	if !ok {
		return nil, &recerror.ParseError{Input: sourceData, Reason: "unsupported source data format"}
	}

	var words []string
	for _, w := range strings.Fields(desc) {
		w = strings.ToLower(strings.Trim(w, "-."))
		if w != "" {
			words = append(words, w)
		}
	}

	features := []string{"source_account=" + account}
	for start := 0; start < len(words); start++ {
		for end := start + 1; end <= len(words); end++ {
			features = append(features, "phrase:"+strings.Join(words[start:end], " "))
		}
	}
	return features, nil
}

// Narration extracts the human-readable description from a source
// descriptor, for use as the narration of a new transaction.
func Narration(sourceData string) (string, error) {
	desc, ok := strings.CutPrefix(sourceData, descriptorPrefix)
	if !ok {
		return "", &recerror.ParseError{Input: sourceData, Reason: "unsupported source data format"}
	}
	return desc, nil
}

// SourceData builds a descriptor from a feed description.
func SourceData(description string) string {
	return descriptorPrefix + description
}

// Classifier maps feature sets to target account names.
type Classifier struct {
	inner   *bayesian.Classifier
	classes []bayesian.Class
}

// Train builds a classifier from the accumulated examples.
func Train(examples []Example) (*Classifier, error) {
	distinct := make(map[string]bool)
	for _, ex := range examples {
		distinct[ex.Target] = true
	}
	if len(distinct) < 2 {
		return nil, ErrNotEnoughClasses
	}

	classes := make([]bayesian.Class, 0, len(distinct))
	for target := range distinct {
		classes = append(classes, bayesian.Class(target))
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	inner := bayesian.NewClassifier(classes...)
	for _, ex := range examples {
		inner.Learn(ex.Features, bayesian.Class(ex.Target))
	}

	log.WithFields(logrus.Fields{"examples": len(examples), "accounts": len(classes)}).
		Info("Trained account classifier")
	return &Classifier{inner: inner, classes: classes}, nil
}

// Predict returns the most likely target account for the feature set.
func (c *Classifier) Predict(features []string) string {
	_, idx, _ := c.inner.LogScores(features)
	return string(c.classes[idx])
}

// Accuracy evaluates the classifier against a set of examples, returning the
// fraction predicted correctly. Used for logging after retraining.
func (c *Classifier) Accuracy(examples []Example) float64 {
	if len(examples) == 0 {
		return 0
	}
	correct := 0
	for _, ex := range examples {
		if c.Predict(ex.Features) == ex.Target {
			correct++
		}
	}
	return float64(correct) / float64(len(examples))
}
