package models

// TelemetrySample is a fixed-shape record of instantaneous battery, home and
// solar metrics, matching the partner telemetry field set.
type TelemetrySample struct {
	LastMode                           BatteryMode `json:"last_mode"`
	BatteryLastPowerChargeW            float64     `json:"battery_last_power_charge_w"`
	BatteryLastPowerDischargeW         float64     `json:"battery_last_power_discharge_w"`
	BatteryTotalEnergyChargeWh         float64     `json:"battery_total_energy_charge_wh"`
	BatteryTotalEnergyDischargeWh      float64     `json:"battery_total_energy_discharge_wh"`
	BatteryLastStoredEnergyWh          float64     `json:"battery_last_stored_energy_wh"`
	BatteryLastCapacityEnergyWh        float64     `json:"battery_last_capacity_energy_wh"`
	BatteryLastBackupReservePercentage float64     `json:"battery_last_backup_reserve_percentage"`
	LastIsGridOnline                   bool        `json:"last_is_grid_online"`
	HomeTotalEnergyWh                  float64     `json:"home_total_energy_wh"`
	HomeLastPowerW                     float64     `json:"home_last_power_w"`
	SolarTotalEnergyWh                 float64     `json:"solar_total_energy_wh"`
	SolarLastPowerW                    float64     `json:"solar_last_power_w"`
}

// TelemetryMessage is the envelope published on the device telemetry channel.
// LastCommandAcked is the device ack watermark as an RFC 3339 string, or nil
// when no command has ever been acknowledged.
type TelemetryMessage struct {
	LastCommandAcked *string         `json:"last_command_acked"`
	Telemetry        TelemetrySample `json:"telemetry"`
}
