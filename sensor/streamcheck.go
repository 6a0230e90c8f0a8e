/*
DESCRIPTION
  streamcheck.go implements compatibility checking of requested stream
  combinations against sensor limits: formats, sizes, use cases, dynamic
  range profiles and per-device stream count limits.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sensor

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hal/stream"
)

// PhysicalConfigurationMaps maps physical camera IDs to their stream
// configuration maps.
type PhysicalConfigurationMaps map[uint32]*stream.ConfigurationMap

// SplitStreamCombination partitions a requested stream combination into
// the set of outputs intended for default resolution mode, the set for
// maximum resolution mode, and the input streams. Output streams may
// appear in both resolution sets.
func SplitStreamCombination(config stream.Configuration) (defaultMode, maxResMode, input stream.Configuration) {
	for _, s := range config.Streams {
		if s.Type == stream.TypeInput {
			input.Streams = append(input.Streams, s)
			continue
		}
		if s.DefaultMode {
			defaultMode.Streams = append(defaultMode.Streams, s)
		}
		if s.MaxResMode {
			maxResMode.Streams = append(maxResMode.Streams, s)
		}
	}
	return
}

// IsStreamCombinationSupported reports whether the given stream
// combination can be configured on the logical camera. The combination is
// split by resolution mode and each subset checked against the matching
// configuration maps; input streams may be served by either mode.
func IsStreamCombinationSupported(logicalID uint32, config stream.Configuration,
	defaultMap, maxResMap *stream.ConfigurationMap,
	physical, physicalMaxRes PhysicalConfigurationMaps,
	chars LogicalCharacteristics, log logging.Logger) bool {

	defaultMode, maxResMode, input := SplitStreamCombination(config)

	return isCombinationSupported(logicalID, defaultMode, defaultMap, physical, chars, false, log) &&
		isCombinationSupported(logicalID, maxResMode, maxResMap, physicalMaxRes, chars, true, log) &&
		(isCombinationSupported(logicalID, input, defaultMap, physical, chars, false, log) ||
			isCombinationSupported(logicalID, input, maxResMap, physicalMaxRes, chars, true, log))
}

func isCombinationSupported(logicalID uint32, config stream.Configuration,
	configMap *stream.ConfigurationMap, physical PhysicalConfigurationMaps,
	chars LogicalCharacteristics, isMaxRes bool, log logging.Logger) bool {

	logical, ok := chars[logicalID]
	if !ok {
		log.Error("characteristics absent for logical camera", "id", logicalID)
		return false
	}

	var inputCount uint32
	rawCount := map[uint32]uint32{}
	processedCount := map[uint32]uint32{}
	stallingCount := map[uint32]uint32{}

	for _, s := range config.Streams {
		isDynamicOutput := s.IsPhysical && s.GroupID != -1
		if s.Rotation != stream.Rotation0 {
			log.Error("stream rotation not supported", "rotation", int(s.Rotation))
			return false
		}

		if !logical.SupportsStreamUseCase {
			if s.UseCase != stream.UseCaseDefault {
				log.Error("device doesn't support non-default stream use case")
				return false
			}
		} else if s.UseCase > logical.EndValidUseCase {
			log.Error("stream use case not supported", "useCase", int(s.UseCase))
			return false
		} else if s.UseCase != stream.UseCaseDefault {
			switch {
			case s.UseCase == stream.UseCaseStillCapture:
				if s.Format != stream.FormatYCbCr420 && s.Format != stream.FormatBlob {
					log.Error("still capture use case incompatible with format", "format", s.Format.String())
					return false
				}
			case (s.Format == stream.FormatRAW16) != (s.UseCase == stream.UseCaseCroppedRaw):
				// CROPPED_RAW pairs with RAW16 and only RAW16.
				log.Error("cropped RAW use case requires RAW16 format", "format", s.Format.String())
				return false
			case s.Format != stream.FormatYCbCr420 && s.Format != stream.FormatImplementationDefined && s.Format != stream.FormatRAW16:
				log.Error("stream use case incompatible with format", "useCase", int(s.UseCase), "format", s.Format.String())
				return false
			}
		}

		if s.Type == stream.TypeInput {
			if logical.MaxInputStreams == 0 {
				log.Error("input streams are not supported on this device")
				return false
			}

			if len(configMap.ValidOutputFormatsForInput(s.Format)) == 0 {
				log.Error("input stream format not supported on this device", "format", s.Format.String())
				return false
			}

			inputCount++
			continue
		}

		if s.IsPhysical {
			if _, ok := physical[s.PhysicalCameraID]; !ok {
				log.Error("invalid physical camera id", "id", s.PhysicalCameraID)
				return false
			}
		}

		if isDynamicOutput {
			if !physical[s.PhysicalCameraID].SupportsDynamicPhysicalFormat(s.Format) {
				log.Error("unsupported physical stream format", "format", s.Format.String())
				return false
			}
		}

		if s.Profile != stream.ProfileStandard {
			sc := logical
			if s.IsPhysical {
				sc = chars[s.PhysicalCameraID]
			}
			if sc == nil || !sc.Is10BitCapable {
				log.Error("10-bit dynamic range output not supported on this device")
				return false
			}

			if s.Format != stream.FormatImplementationDefined && s.Format != stream.FormatYCbCrP010 {
				log.Error("10-bit dynamic range profile not supported on a non 10-bit output stream",
					"profile", int(s.Profile), "format", s.Format.String())
				return false
			}

			if s.Format == stream.FormatYCbCrP010 &&
				s.Dataspace != stream.DataspaceBT2020ITUHLG &&
				s.Dataspace != stream.DataspaceBT2020HLG &&
				s.Dataspace != stream.DataspaceUnknown {
				log.Error("unsupported stream dataspace for 10-bit YUV output", "dataspace", int(s.Dataspace))
				return false
			}
		}

		switch s.Format {
		case stream.FormatBlob:
			if s.Dataspace != stream.DataspaceJFIF &&
				s.Dataspace != stream.DataspaceJPEGR &&
				s.Dataspace != stream.DataspaceUnknown {
				log.Error("unsupported BLOB dataspace", "dataspace", int(s.Dataspace))
				return false
			}
			countStream(stallingCount, s, logicalID, physical)
		case stream.FormatRAW16:
			sc := logical
			if s.IsPhysical {
				sc = chars[s.PhysicalCameraID]
			}
			sensorWidth, sensorHeight := sc.Width, sc.Height
			if isMaxRes {
				sensorWidth, sensorHeight = sc.FullResWidth, sc.FullResHeight
			}
			if s.Width != sensorWidth || s.Height != sensorHeight {
				log.Error("RAW16 buffer dimensions must match sensor dimensions",
					"width", s.Width, "height", s.Height,
					"sensorWidth", sensorWidth, "sensorHeight", sensorHeight)
				return false
			}
			countStream(rawCount, s, logicalID, physical)
		default:
			countStream(processedCount, s, logicalID, physical)
		}

		var sizeOK bool
		switch {
		case isDynamicOutput:
			sizeOK = physical[s.PhysicalCameraID].SupportsDynamicPhysicalSize(s.Format, s.Width, s.Height)
		case s.IsPhysical:
			sizeOK = physical[s.PhysicalCameraID].SupportsOutputSize(s.Format, s.Width, s.Height)
		default:
			sizeOK = configMap.SupportsOutputSize(s.Format, s.Width, s.Height)
		}
		if !sizeOK {
			log.Error("stream size and format not supported",
				"width", s.Width, "height", s.Height, "format", s.Format.String())
			return false
		}
	}

	for id, n := range rawCount {
		max := chars[id].MaxRawStreams
		if isMaxRes {
			// An extra RAW stream is allowed for remosaic reprocessing.
			max++
		}
		if n > max {
			log.Error("RAW stream count exceeds supported maximum", "count", n, "max", max)
			return false
		}
	}
	for id, n := range stallingCount {
		if n > chars[id].MaxStallingStreams {
			log.Error("stalling stream count exceeds supported maximum", "count", n, "max", chars[id].MaxStallingStreams)
			return false
		}
	}
	for id, n := range processedCount {
		if n > chars[id].MaxProcessedStreams {
			log.Error("processed stream count exceeds supported maximum", "count", n, "max", chars[id].MaxProcessedStreams)
			return false
		}
	}

	if inputCount > logical.MaxInputStreams {
		log.Error("input stream count exceeds supported maximum", "count", inputCount, "max", logical.MaxInputStreams)
		return false
	}

	return true
}

// countStream attributes an output stream to its physical camera, or to
// every physical camera when requested on the logical one.
func countStream(counts map[uint32]uint32, s stream.Stream, logicalID uint32, physical PhysicalConfigurationMaps) {
	if s.IsPhysical {
		counts[s.PhysicalCameraID]++
		return
	}
	if len(physical) == 0 {
		counts[logicalID]++
		return
	}
	for id := range physical {
		counts[id]++
	}
}
