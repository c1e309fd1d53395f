package repository

// Schema definitions for the ClaimGuard database.
// Compatible with both SQLite and PostgreSQL. Timestamps used for
// filtering are stored as unix nanoseconds; the full record lives in doc.

const schemaInsurers = `
CREATE TABLE IF NOT EXISTS insurers (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    policy_number TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    insurer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    start_date BIGINT NOT NULL,
    end_date BIGINT NOT NULL,
    renewed_from TEXT NOT NULL DEFAULT '',
    version BIGINT NOT NULL DEFAULT 0,
    doc TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id),
    UNIQUE (tenant_id, policy_number)
);

CREATE INDEX IF NOT EXISTS idx_policies_customer ON policies(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(tenant_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_renewed_from ON policies(tenant_id, renewed_from) WHERE renewed_from <> '';
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    claim_number TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    reported_at BIGINT NOT NULL,
    version BIGINT NOT NULL,
    doc TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id),
    UNIQUE (tenant_id, claim_number)
);

CREATE INDEX IF NOT EXISTS idx_claims_customer ON claims(tenant_id, customer_id, reported_at);
CREATE INDEX IF NOT EXISTS idx_claims_policy ON claims(tenant_id, policy_id);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(tenant_id, status);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0,
    detected_at BIGINT NOT NULL,
    doc TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_claim ON fraud_alerts(tenant_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_customer ON fraud_alerts(tenant_id, customer_id);
`

const schemaRiskAssessments = `
CREATE TABLE IF NOT EXISTS risk_assessments (
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    score REAL NOT NULL,
    level TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    doc TEXT NOT NULL,
    PRIMARY KEY (tenant_id, customer_id)
);
`

const schemaSequences = `
CREATE TABLE IF NOT EXISTS sequences (
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    seq_value BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, name)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaInsurers,
		schemaPolicies,
		schemaClaims,
		schemaFraudAlerts,
		schemaRiskAssessments,
		schemaSequences,
	}
}
