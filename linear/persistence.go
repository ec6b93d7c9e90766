package linear

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

const artifactVersion = 1

// artifact is the gob payload of a package. Matrices are stored in gonum's
// binary format.
type artifact struct {
	Version   int
	Intercept bool
	Terms     []Term
	Coef      []byte
	NormCov   []byte
	Singular  []float64
	Rank      int
	Rows      []int
	Observed  []float64
	Fitted    []float64
	Resid     []float64
	Results   Results
}

func init() {
	model.Register(Name, func() model.Model { return NewOLS() })
}

// Serialize returns the package metadata and the artifact bytes.
// The artifact entry is named "OLS_<uuid>.bin".
func (m *OLS) Serialize() (*model.Serialized, error) {
	st, err := m.fitted("Serialize")
	if err != nil {
		return nil, err
	}

	coef, err := st.coef.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode coefficients")
	}
	cov, err := st.normCov.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode covariance")
	}

	b, err := model.EncodeArtifact(&artifact{
		Version:   artifactVersion,
		Intercept: st.intercept,
		Terms:     st.terms,
		Coef:      coef,
		NormCov:   cov,
		Singular:  st.singular,
		Rank:      st.rank,
		Rows:      st.rows,
		Observed:  st.observed,
		Fitted:    st.fitted,
		Resid:     st.resid,
		Results:   *st.results,
	})
	if err != nil {
		return nil, err
	}

	ivs := make([]string, len(st.terms))
	for i, t := range st.terms {
		ivs[i] = t.Name
	}
	s := &model.Serialized{
		Metadata: model.Metadata{
			Name:        m.Name(),
			Description: m.Description(),
			IVs:         ivs,
			DVs:         []string{st.dv},
			Model:       model.NewArtifactName(Name),
		},
		Artifact: b,
	}
	m.logger.Debug("serialized",
		log.ModelNameKey, Name,
		log.OperationKey, log.OperationSerialize,
		log.DataSizeKey, len(b),
	)
	return s, nil
}

// Load replaces the model state with a serialized OLS. On error the model is
// left unchanged.
func (m *OLS) Load(s *model.Serialized) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Metadata.Name != Name {
		return errors.NewValidationError("name", "package does not hold an OLS model", s.Metadata.Name)
	}

	var a artifact
	if err := model.DecodeArtifact(s.Artifact, &a); err != nil {
		return err
	}
	if a.Version != artifactVersion {
		return errors.NewValidationError("version", "unsupported artifact version", a.Version)
	}

	var coef mat.VecDense
	if err := coef.UnmarshalBinary(a.Coef); err != nil {
		return errors.NewParseError("artifact", 0, err)
	}
	var cov mat.Dense
	if err := cov.UnmarshalBinary(a.NormCov); err != nil {
		return errors.NewParseError("artifact", 0, err)
	}

	p := len(a.Terms)
	if r, c := cov.Dims(); coef.Len() != p || r != p || c != p {
		return errors.NewDimensionError("OLS.Load", p, coef.Len(), 1)
	}
	if len(s.Metadata.IVs) != p {
		return errors.NewDimensionError("OLS.Load", p, len(s.Metadata.IVs), 1)
	}
	if len(s.Metadata.DVs) != 1 {
		return errors.NewValidationError("dvs", "OLS takes exactly one dependent variable", s.Metadata.DVs)
	}
	for i, t := range a.Terms {
		if t.Name != s.Metadata.IVs[i] {
			return errors.NewValidationError("ivs", "metadata does not match the artifact terms", s.Metadata.IVs)
		}
	}

	results := a.Results
	st := &fitState{
		intercept: a.Intercept,
		dv:        s.Metadata.DVs[0],
		terms:     a.Terms,
		coef:      &coef,
		normCov:   &cov,
		singular:  a.Singular,
		rank:      a.Rank,
		rows:      a.Rows,
		observed:  a.Observed,
		fitted:    a.Fitted,
		resid:     a.Resid,
		results:   &results,
	}

	m.publish(st, func() { m.Restore(s.Metadata) })

	m.logger.Debug("loaded",
		log.ModelNameKey, Name,
		log.OperationKey, log.OperationLoad,
		log.DataSizeKey, len(s.Artifact),
	)
	return nil
}
