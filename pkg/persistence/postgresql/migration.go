package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(100) NOT NULL DEFAULT '',
				trigger_conditions JSONB,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_by_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_account ON workflow_definitions(account_id);

			CREATE TABLE workflow_steps (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				step_type VARCHAR(50) NOT NULL,
				position INT NOT NULL,
				configuration JSONB,
				conditions JSONB,
				is_required BOOLEAN NOT NULL DEFAULT true,
				timeout_minutes INT,
				PRIMARY KEY (workflow_id, id),
				UNIQUE (workflow_id, position)
			);

			CREATE TABLE step_approvers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				approver_type VARCHAR(50) NOT NULL,
				is_required BOOLEAN NOT NULL DEFAULT false,
				approver_order INT NOT NULL DEFAULT 0,
				FOREIGN KEY (workflow_id, step_id) REFERENCES workflow_steps(workflow_id, id) ON DELETE CASCADE
			);

			CREATE INDEX idx_step_approvers_workflow ON step_approvers(workflow_id);
		`,
		2: `
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflow_definitions(id),
				entity_type VARCHAR(100) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('RUNNING', 'COMPLETED', 'FAILED')),
				priority VARCHAR(50) NOT NULL DEFAULT 'NORMAL',
				metadata JSONB,
				account_id VARCHAR(255) NOT NULL,
				initiated_by_id VARCHAR(255) NOT NULL DEFAULT '',
				current_step_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_instances_account ON workflow_instances(account_id, started_at DESC);
			CREATE INDEX idx_workflow_instances_entity ON workflow_instances(entity_type, entity_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);

			CREATE TABLE workflow_step_executions (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				assigned_to_id VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_step_executions_instance ON workflow_step_executions(instance_id, started_at);

			CREATE TABLE workflow_approvals (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL REFERENCES workflow_step_executions(id) ON DELETE CASCADE,
				approver_id VARCHAR(255) NOT NULL,
				step_approver_id VARCHAR(255) NOT NULL DEFAULT '',
				is_required BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(50) NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
				comments TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				approved_at TIMESTAMP WITH TIME ZONE,
				rejected_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_approvals_execution ON workflow_approvals(execution_id);
			CREATE INDEX idx_workflow_approvals_instance ON workflow_approvals(instance_id);
		`,
		3: `
			CREATE TABLE workflow_resumptions (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('PENDING', 'FIRED')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				fired_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_resumptions_due ON workflow_resumptions(status, due_at);
		`,
	}
}
