package inference

import (
	"fmt"
	"os"
)

// Device is where the model weights are placed.
type Device string

// Supported devices. DeviceAuto is only valid as a request.
const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// Precision is the floating point width used for activations and the KV cache.
type Precision string

// Supported compute precisions.
const (
	PrecisionFloat16 Precision = "float16"
	PrecisionFloat32 Precision = "float32"
)

// Quantization is the weight representation the host asks for.
type Quantization string

// Supported weight quantizations.
const (
	QuantizationInt8 Quantization = "int8"
	QuantizationNone Quantization = "none"
)

// AllLayers offloads every layer to the accelerator.
const AllLayers = 999

// RuntimeConfig is resolved once at load time and never changes for the life of a Session.
type RuntimeConfig struct {
	Device       Device
	Compute      Precision
	Quantization Quantization
	GPULayers    int
}

// ResolveRuntime picks placement and precision. With an accelerator the weights are 8-bit
// and compute is half precision; on general-purpose compute everything stays full precision.
// Requesting cuda without an accelerator is an error.
func ResolveRuntime(requested Device, accelerator bool) (RuntimeConfig, error) {
	switch requested {
	case DeviceAuto, "":
		if accelerator {
			return acceleratedRuntime(), nil
		}
		return cpuRuntime(), nil
	case DeviceCUDA:
		if !accelerator {
			return RuntimeConfig{}, fmt.Errorf("device %q requested but no accelerator is available", requested)
		}
		return acceleratedRuntime(), nil
	case DeviceCPU:
		return cpuRuntime(), nil
	default:
		return RuntimeConfig{}, fmt.Errorf("unsupported device %q", requested)
	}
}

func acceleratedRuntime() RuntimeConfig {
	return RuntimeConfig{
		Device:       DeviceCUDA,
		Compute:      PrecisionFloat16,
		Quantization: QuantizationInt8,
		GPULayers:    AllLayers,
	}
}

func cpuRuntime() RuntimeConfig {
	return RuntimeConfig{
		Device:       DeviceCPU,
		Compute:      PrecisionFloat32,
		Quantization: QuantizationNone,
		GPULayers:    0,
	}
}

// DetectAccelerator reports whether an NVIDIA device node is present.
func DetectAccelerator() bool {
	for _, node := range []string{"/dev/nvidiactl", "/dev/nvidia0"} {
		if _, err := os.Stat(node); err == nil {
			return true
		}
	}

	return false
}
