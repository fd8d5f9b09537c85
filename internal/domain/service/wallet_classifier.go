package service

import (
	"fmt"
	"sort"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// roleRule maps a pattern membership onto a laundering role
type roleRule struct {
	patternType entity.PatternType
	role        entity.Role
	nodeType    entity.NodeType
}

// nodeTypePriority settles ties between equally supported roles
var nodeTypePriority = []entity.NodeType{
	entity.NodeTypeOriginator,
	entity.NodeTypeConsolidator,
	entity.NodeTypeCycler,
	entity.NodeTypePeeler,
	entity.NodeTypeMule,
}

// WalletClassifierService assigns a laundering role to each scored wallet
type WalletClassifierService struct {
	rules             []roleRule
	highCentrality    float64
	structuralOutlier float64
	logger            *logger.Logger
}

// NewWalletClassifierService creates a new wallet classifier
func NewWalletClassifierService(logger *logger.Logger) *WalletClassifierService {
	service := &WalletClassifierService{
		highCentrality:    80,
		structuralOutlier: 80,
		logger:            logger.WithComponent("wallet-classifier"),
	}
	service.initializeDefaultRules()
	return service
}

// initializeDefaultRules sets up the membership to role mapping
func (wcs *WalletClassifierService) initializeDefaultRules() {
	wcs.rules = []roleRule{
		{entity.PatternFanOutFanIn, entity.RoleSource, entity.NodeTypeOriginator},
		{entity.PatternFanOutFanIn, entity.RoleIntermediate, entity.NodeTypeMule},
		{entity.PatternFanOutFanIn, entity.RoleDestination, entity.NodeTypeConsolidator},
		{entity.PatternLayered, entity.RoleSource, entity.NodeTypeOriginator},
		{entity.PatternLayered, entity.RoleIntermediate, entity.NodeTypeMule},
		{entity.PatternLayered, entity.RoleDestination, entity.NodeTypeConsolidator},
		{entity.PatternCyclic, entity.RoleSource, entity.NodeTypeCycler},
		{entity.PatternCyclic, entity.RoleIntermediate, entity.NodeTypeCycler},
		{entity.PatternCyclic, entity.RoleDestination, entity.NodeTypeCycler},
		{entity.PatternPeelingChain, entity.RoleSource, entity.NodeTypePeeler},
		{entity.PatternPeelingChain, entity.RoleIntermediate, entity.NodeTypePeeler},
		{entity.PatternPeelingChain, entity.RoleDestination, entity.NodeTypePeeler},
	}
}

func (wcs *WalletClassifierService) nodeTypeFor(membership entity.PatternMembership) (entity.NodeType, bool) {
	for _, rule := range wcs.rules {
		if rule.patternType == membership.Type && rule.role == membership.Role {
			return rule.nodeType, true
		}
	}
	return "", false
}

// Classify labels a wallet from its risk assessment. Known illicit wallets
// keep that label; otherwise the role with the most pattern evidence wins.
func (wcs *WalletClassifierService) Classify(assessment *entity.RiskAssessment) *entity.NodeClassification {
	classification := &entity.NodeClassification{
		Address:        assessment.Score.Wallet,
		PrimaryType:    entity.NodeTypeUninvolved,
		SecondaryTypes: []entity.NodeType{},
		RiskLevel:      assessment.Score.RiskLevel,
		Tags:           []string{},
	}

	evidence := make(map[entity.NodeType]float64)
	seenPatternTypes := make(map[entity.PatternType]struct{})
	for _, membership := range assessment.Patterns {
		nodeType, ok := wcs.nodeTypeFor(membership)
		if !ok {
			continue
		}
		evidence[nodeType] += membership.Score
		seenPatternTypes[membership.Type] = struct{}{}
	}
	ranked := rankNodeTypes(evidence)

	switch {
	case assessment.IsIllicit:
		classification.PrimaryType = entity.NodeTypeKnownIllicit
		classification.RiskLevel = entity.RiskLevelCritical
		classification.SecondaryTypes = append(classification.SecondaryTypes, ranked...)
	case len(ranked) > 0:
		classification.PrimaryType = ranked[0]
		classification.SecondaryTypes = append(classification.SecondaryTypes, ranked[1:]...)
	case assessment.ReachesIllicit:
		classification.PrimaryType = entity.NodeTypeExposed
	}

	for _, patternType := range entity.PatternTypes {
		if _, ok := seenPatternTypes[patternType]; ok {
			classification.Tags = append(classification.Tags, string(patternType))
		}
	}
	if assessment.DirectIllicitNeighbors > 0 {
		classification.Tags = append(classification.Tags, "illicit_neighbor")
	}
	if assessment.Score.Centrality >= wcs.highCentrality {
		classification.Tags = append(classification.Tags, "high_centrality")
	}
	if assessment.Score.StructuralAnomaly >= wcs.structuralOutlier {
		classification.Tags = append(classification.Tags, "structural_outlier")
	}

	return classification
}

// ClassifyAll classifies the given wallets using a scoring session
func (wcs *WalletClassifierService) ClassifyAll(scorer *SuspicionScorerService, wallets []string) ([]*entity.NodeClassification, error) {
	classifications := make([]*entity.NodeClassification, 0, len(wallets))
	counts := make(map[entity.NodeType]int)
	for _, wallet := range wallets {
		assessment, err := scorer.RiskAssessment(wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to assess wallet %s: %w", wallet, err)
		}
		classification := wcs.Classify(assessment)
		counts[classification.PrimaryType]++
		classifications = append(classifications, classification)
	}

	wcs.logger.Debug("Wallets classified",
		zap.Int("wallets", len(classifications)),
		zap.Int("originators", counts[entity.NodeTypeOriginator]),
		zap.Int("mules", counts[entity.NodeTypeMule]),
		zap.Int("consolidators", counts[entity.NodeTypeConsolidator]),
		zap.Int("exposed", counts[entity.NodeTypeExposed]))

	return classifications, nil
}

func rankNodeTypes(evidence map[entity.NodeType]float64) []entity.NodeType {
	priority := make(map[entity.NodeType]int, len(nodeTypePriority))
	for i, nodeType := range nodeTypePriority {
		priority[nodeType] = i
	}

	ranked := make([]entity.NodeType, 0, len(evidence))
	for nodeType := range evidence {
		ranked = append(ranked, nodeType)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if evidence[ranked[i]] != evidence[ranked[j]] {
			return evidence[ranked[i]] > evidence[ranked[j]]
		}
		return priority[ranked[i]] < priority[ranked[j]]
	})
	return ranked
}
