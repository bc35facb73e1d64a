package duckstore

// schema is applied on every Open; every statement is idempotent.
// meal_entry_delta and composite_ingredient carry no primary key because
// their rows are replaced wholesale inside a transaction. Imports merge
// repeated ingredient foods, so (item_type, item_id, food_id) stays unique.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS nutrient (
		code           VARCHAR PRIMARY KEY,
		name           VARCHAR NOT NULL,
		unit           VARCHAR NOT NULL,
		nutrient_group VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS category (
		category_type VARCHAR NOT NULL,
		category_id   BIGINT  NOT NULL,
		code          VARCHAR NOT NULL,
		name          VARCHAR NOT NULL,
		unit          VARCHAR NOT NULL,
		PRIMARY KEY (category_type, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nutrient_mapping (
		nutrient_code     VARCHAR NOT NULL,
		category_type     VARCHAR NOT NULL,
		category_id       BIGINT  NOT NULL,
		conversion_factor DOUBLE  NOT NULL CHECK (conversion_factor > 0),
		PRIMARY KEY (nutrient_code, category_type)
	)`,
	`CREATE TABLE IF NOT EXISTS base_requirement (
		category_type VARCHAR NOT NULL,
		category_id   BIGINT  NOT NULL,
		sex           VARCHAR NOT NULL,
		life_stage    VARCHAR NOT NULL DEFAULT '',
		age_min       INTEGER NOT NULL,
		age_max       INTEGER NOT NULL,
		amount        DOUBLE  NOT NULL,
		unit          VARCHAR NOT NULL,
		per_kg        BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (category_type, category_id, sex, life_stage, age_min)
	)`,
	`CREATE TABLE IF NOT EXISTS health_condition (
		condition_id BIGINT PRIMARY KEY,
		name         VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS condition_nutrient_effect (
		effect_id          BIGINT PRIMARY KEY,
		condition_id       BIGINT  NOT NULL,
		category_type      VARCHAR NOT NULL,
		category_id        BIGINT  NOT NULL,
		effect_type        VARCHAR NOT NULL,
		adjustment_percent DOUBLE  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS condition_food_recommendation (
		condition_id        BIGINT  NOT NULL,
		food_id             BIGINT  NOT NULL,
		recommendation_type VARCHAR NOT NULL,
		notes               VARCHAR NOT NULL DEFAULT '',
		PRIMARY KEY (condition_id, food_id)
	)`,
	`CREATE TABLE IF NOT EXISTS food (
		food_id BIGINT PRIMARY KEY,
		name    VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS food_composition (
		food_id         BIGINT  NOT NULL,
		nutrient_code   VARCHAR NOT NULL,
		amount_per_100g DOUBLE  NOT NULL,
		PRIMARY KEY (food_id, nutrient_code)
	)`,
	`CREATE TABLE IF NOT EXISTS composite (
		item_type VARCHAR NOT NULL,
		item_id   BIGINT  NOT NULL,
		name      VARCHAR NOT NULL,
		PRIMARY KEY (item_type, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS composite_ingredient (
		item_type VARCHAR NOT NULL,
		item_id   BIGINT  NOT NULL,
		food_id   BIGINT  NOT NULL,
		weight_g  DOUBLE  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profile (
		user_id        BIGINT PRIMARY KEY,
		age            INTEGER NOT NULL,
		sex            VARCHAR NOT NULL,
		weight_kg      DOUBLE  NOT NULL,
		activity_level VARCHAR NOT NULL DEFAULT '',
		life_stage     VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS user_health_condition (
		user_condition_id BIGINT PRIMARY KEY,
		user_id           BIGINT  NOT NULL,
		condition_id      BIGINT  NOT NULL,
		start_date        DATE    NOT NULL,
		end_date          DATE,
		status            VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meal_entry (
		entry_id   VARCHAR PRIMARY KEY,
		user_id    BIGINT    NOT NULL,
		entry_date DATE      NOT NULL,
		meal_type  VARCHAR   NOT NULL DEFAULT '',
		item_type  VARCHAR   NOT NULL,
		item_id    BIGINT    NOT NULL,
		weight_g   DOUBLE    NOT NULL CHECK (weight_g > 0),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meal_entry_delta (
		entry_id      VARCHAR NOT NULL,
		category_type VARCHAR NOT NULL,
		category_id   BIGINT  NOT NULL,
		amount        DOUBLE  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_category_total (
		user_id         BIGINT    NOT NULL,
		entry_date      DATE      NOT NULL,
		category_type   VARCHAR   NOT NULL,
		category_id     BIGINT    NOT NULL,
		consumed_amount DOUBLE    NOT NULL CHECK (consumed_amount >= 0),
		updated_at      TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, entry_date, category_type, category_id)
	)`,
	`ALTER TABLE meal_entry ADD COLUMN IF NOT EXISTS meal_type VARCHAR DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_meal_entry_user_date ON meal_entry (user_id, entry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_entry_delta_entry ON meal_entry_delta (entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_health_condition_user ON user_health_condition (user_id)`,
}
