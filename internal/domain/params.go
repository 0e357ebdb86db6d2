package domain

// Role names answered by the external role directory.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleResolver = "resolver"
	RolePauser   = "pauser"
	RoleTreasury = "treasury"
	RoleBackend  = "backend"
)

// Parameter keys served by the external parameter store. Amount-valued keys
// are wad integers, duration keys are seconds, threshold keys are plain
// integers, flag keys are booleans.
const (
	ParamMinimumBet             = "minimumBet"
	ParamMaximumBet             = "maximumBet"
	ParamPlatformFeePercent     = "platformFeePercent" // basis points
	ParamMinCreatorBond         = "minCreatorBond"
	ParamDisputeWindow          = "disputeWindow" // seconds
	ParamMinDisputeBond         = "minDisputeBond"
	ParamAgreementThreshold     = "agreementThreshold"    // percent
	ParamDisagreementThreshold  = "disagreementThreshold" // percent
	ParamEscalationBondMultiple = "escalationBondMultiple"
	ParamRequireApproval        = "requireApproval"
	ParamMarketCreationActive   = "marketCreationActive"
	ParamEmergencyPause         = "emergencyPause"
)
